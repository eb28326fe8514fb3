package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"rtcore/src/joy"
	"rtcore/src/lib/trust"
)

var helpFlag = flag.Bool("h", false, "get usage info")
var ptyFlag = flag.String("p", "", "tail the core's console on this tty after submitting")
var verbose = flag.Int("v", 0, "verbosity level: 0 terse (default), 1 debug info, 2 show everything")
var windowFlag = flag.String("w", "/dev/rtcore", "device (or file) holding the shared window")
var formatFlag = flag.String("f", "auto", "image format: elf, hex, raw or auto")
var memFlag = flag.Uint64("mem", 0x1000, "bytes of memory the job asks for")
var offsetFlag = flag.Uint64("offset", 0, "where in the code region to put the image (page aligned)")
var tryFlag = flag.Int("try", 0, "give up after this many attempts when the ring is full, 0 waits")
var slotsFlag = flag.Uint("slots", 0, "ring capacity, 0 for the default layout's")
var bootFlag = flag.Bool("boot", false, "format the ring if needed and start the core")
var hexOutFlag = flag.String("hex", "", "also write the flattened image to this file in hex format")

func main() {
	flag.Parse()
	if *helpFlag || flag.NArg() != 1 {
		usage()
	}
	level := trust.InfoMask
	if *verbose > 0 {
		level = trust.DebugMask
	}
	logger := trust.NewLogger(os.Stderr, level, os.Exit)

	layout := joy.DefaultLayout()
	if *slotsFlag != 0 {
		layout.RingSlots = uint32(*slotsFlag)
	}
	if err := layout.Validate(); err != nil {
		logger.Fatalf(1, "layout: %v", err)
	}

	img, err := loadImage(flag.Arg(0), *formatFlag, imageLimit(layout))
	if err != nil {
		logger.Fatalf(1, "%s: %v", flag.Arg(0), err)
	}
	logger.Debugf("%s is %#x bytes", img.name, len(img.data))
	if *hexOutFlag != "" {
		if err := os.WriteFile(*hexOutFlag, []byte(encodeHex(img.data)), 0644); err != nil {
			logger.Fatalf(1, "%v", err)
		}
	}

	w, err := openWindow(*windowFlag, layout.WindowSize())
	if err != nil {
		logger.Fatalf(1, "%v", err)
	}
	defer w.Close()

	d, err := submit(w.mem, layout, img, submission{
		offset:  *offsetFlag,
		memory:  *memFlag,
		tries:   *tryFlag,
		backoff: time.Millisecond,
		format:  *bootFlag,
	})
	if err != nil {
		w.Close()
		logger.Fatalf(1, "%s: %v", img.name, err)
	}
	logger.Infof("submitted %v", d)

	if *bootFlag {
		p := bootParams(layout)
		logger.Debugf("kernel boot parameters: %#v", *p)
		params, err := encodeParams(p)
		if err == nil {
			err = w.startCPU(params)
		}
		if err != nil {
			w.Close()
			logger.Fatalf(1, "%v", err)
		}
	}

	if *ptyFlag == "" {
		return
	}
	c, err := openConsole(*ptyFlag)
	if err != nil {
		w.Close()
		logger.Fatalf(1, "unable to connect to %s: %v", *ptyFlag, err)
	}
	defer c.Close()
	logger.Infof("--- kernel log ---")
	if err := tail(c.io.Input(), os.Stdout, *verbose, logger); err != nil {
		logger.Errorf("%v", err)
	}
}

func usage() {
	fmt.Printf("usage: release [flags] job-image\n")
	flag.PrintDefaults()
	os.Exit(1)
}
