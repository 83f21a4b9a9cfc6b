// Command dotmatrix runs a ROM headless: frames render into a PNG, serial
// output streams to stdout, and the APU can be recorded to a WAV file.
// It is the harness for running test ROMs in CI.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"hash/crc32"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"

	"github.com/dotmatrix-emu/dotmatrix/internal/gb"
	"github.com/dotmatrix-emu/dotmatrix/internal/ppu"
	"github.com/dotmatrix-emu/dotmatrix/internal/serial"
	"github.com/dotmatrix-emu/dotmatrix/internal/wavwriter"
)

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb)")
	frames := flag.Int("frames", 600, "frames to run; 0 runs until -until or -timeout")
	until := flag.String("until", "", "stop when serial output contains this substring (case-insensitive)")
	timeout := flag.Duration("timeout", 0, "wall-clock limit; 0 disables")
	outPNG := flag.String("outpng", "", "write the final frame as PNG")
	expect := flag.String("expect", "", "assert the final frame's CRC32 (hex)")
	wavPath := flag.String("wav", "", "record APU output to a WAV file")
	savePath := flag.String("save", "", "battery RAM file, loaded at start and persisted at exit (default: ROM path with .sav)")
	statePath := flag.String("state", "", "write a save state at exit")
	loadState := flag.String("loadstate", "", "load a save state before running")
	stats := flag.Bool("statsview", false, "serve runtime stats on localhost:18800")
	paletteSpec := flag.String("palette", "green", "green, gray, pocket, or four rrggbb values")
	sampleRate := flag.Int("samplerate", 48000, "APU sample rate in Hz")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	if *savePath == "" {
		*savePath = defaultSavePath(*romPath)
	}
	rom, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read rom: %v", err)
	}
	pal, err := ppu.ParsePalette(*paletteSpec)
	if err != nil {
		log.Fatalf("palette: %v", err)
	}

	if *stats {
		viewer.SetConfiguration(viewer.WithAddr("localhost:18800"))
		mgr := statsview.New()
		go mgr.Start()
		fmt.Println("stats server available at http://localhost:18800/debug/statsview")
	}

	m := gb.New(gb.Config{SampleRate: *sampleRate, Palette: pal})
	if err := m.LoadCartridge(rom); err != nil {
		log.Fatalf("load cartridge: %v", err)
	}

	if data, err := os.ReadFile(*savePath); err == nil {
		m.LoadBattery(data)
	} else if !os.IsNotExist(err) {
		log.Fatalf("read battery: %v", err)
	}
	if *loadState != "" {
		if err := m.LoadStateFromFile(*loadState); err != nil {
			log.Fatalf("load state: %v", err)
		}
	}

	// Serial goes to stdout and, when -until is set, to a capture buffer
	// scanned for the stop substring.
	var captured bytes.Buffer
	var serialOut io.Writer = os.Stdout
	if *until != "" {
		serialOut = io.MultiWriter(os.Stdout, &captured)
	}
	m.AttachSerial(&serial.WriterDevice{W: serialOut})

	var rec *wavwriter.Writer
	if *wavPath != "" {
		rec = wavwriter.New(*wavPath, m.Bus().APU().SampleRate())
	}

	start := time.Now()
	matched := false
	sampleBuf := make([]int16, 8192)
	for frame := 0; *frames == 0 || frame < *frames; frame++ {
		if err := m.RunFrame(); err != nil {
			log.Fatalf("frame %d: %v", frame, err)
		}
		if rec != nil {
			for {
				n := m.Bus().APU().ReadSamples(sampleBuf)
				if n == 0 {
					break
				}
				rec.Append(sampleBuf[:n])
			}
		}
		if *until != "" && containsFold(captured.String(), *until) {
			matched = true
			break
		}
		if *timeout > 0 && time.Since(start) > *timeout {
			break
		}
	}

	if *outPNG != "" || *expect != "" {
		img := m.FrameImage()
		crc := crc32.ChecksumIEEE(img.Pix)
		log.Printf("frame crc32 %08x", crc)
		if *outPNG != "" {
			f, err := os.Create(*outPNG)
			if err != nil {
				log.Fatalf("create png: %v", err)
			}
			if err := png.Encode(f, img); err != nil {
				log.Fatalf("encode png: %v", err)
			}
			f.Close()
		}
		if *expect != "" {
			want, err := strconv.ParseUint(strings.TrimPrefix(*expect, "0x"), 16, 32)
			if err != nil {
				log.Fatalf("bad -expect value %q: %v", *expect, err)
			}
			if crc != uint32(want) {
				log.Fatalf("frame crc32 %08x, expected %08x", crc, uint32(want))
			}
		}
	}

	// SaveBattery reports false for carts without battery RAM, so ROM-only
	// carts never grow a .sav next to them.
	if data, ok := m.SaveBattery(); ok {
		if err := os.WriteFile(*savePath, data, 0o644); err != nil {
			log.Fatalf("write battery: %v", err)
		}
	}
	if *statePath != "" {
		if err := m.SaveStateToFile(*statePath); err != nil {
			log.Fatalf("save state: %v", err)
		}
	}
	if rec != nil {
		if err := rec.Flush(); err != nil {
			log.Fatalf("%v", err)
		}
	}

	if *until != "" && !matched {
		log.Fatalf("stopped without seeing %q in serial output", *until)
	}
}

// defaultSavePath puts the battery file next to the ROM, swapping the
// extension for .sav.
func defaultSavePath(romPath string) string {
	return strings.TrimSuffix(romPath, filepath.Ext(romPath)) + ".sav"
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
