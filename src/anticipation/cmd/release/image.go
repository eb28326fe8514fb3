package main

import (
	"debug/elf"
	"fmt"
	"io"
	"os"
	"strings"
)

// A job image is flat: byte 0 is the first instruction, and the kernel maps
// it at virtual address zero of the job's space.
type image struct {
	name string
	data []byte
}

type notElfFormatErr struct {
}

func (n *notElfFormatErr) Error() string {
	return "file is not elf format (failed to read header)"
}

type noLoadable struct {
}

func (n *noLoadable) Error() string {
	return "no loadable program found in elf file!"
}

type notLinkedAtZero struct {
	base uint64
}

func (n *notLinkedAtZero) Error() string {
	return fmt.Sprintf("elf file is linked at %#x, jobs must be linked at address zero", n.base)
}

type entryNotAtStart struct {
	entry uint64
}

func (e *entryNotAtStart) Error() string {
	return fmt.Sprintf("entry point is %#x, jobs start executing at address zero", e.entry)
}

type wrongMachine struct {
	m elf.Machine
}

func (w *wrongMachine) Error() string {
	return fmt.Sprintf("elf file is for %v, expected %v", w.m, elf.EM_AARCH64)
}

type imageTooBig struct {
	end   uint64
	limit uint64
}

func (i *imageTooBig) Error() string {
	return fmt.Sprintf("image runs to %#x, jobs only see %#x bytes", i.end, i.limit)
}

var NotElfFormat error = &notElfFormatErr{}
var NoLoadableProgram error = &noLoadable{}

// loadImage picks the decoder from the format name: "elf", "hex" or "raw".
// "auto" looks at the file name and falls back to elf.  Images longer than
// limit are refused before they are read in.
func loadImage(filename string, format string, limit uint64) (*image, error) {
	if format == "auto" {
		switch {
		case strings.HasSuffix(filename, ".hex"):
			format = "hex"
		case strings.HasSuffix(filename, ".bin"):
			format = "raw"
		default:
			format = "elf"
		}
	}
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	var data []byte
	switch format {
	case "elf":
		data, err = flattenElf(fp, limit)
	case "hex":
		data, err = decodeHex(fp, limit)
	case "raw":
		data, err = io.ReadAll(io.LimitReader(fp, int64(limit)+1))
		if err == nil && uint64(len(data)) > limit {
			err = &imageTooBig{uint64(len(data)), limit}
		}
	default:
		return nil, fmt.Errorf("unknown image format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: image is empty", filename)
	}
	return &image{name: filename, data: data}, nil
}

// flattenElf lays the PT_LOAD segments out by virtual address.  The part of
// a segment past its file size (bss) is left zero.
func flattenElf(rd io.ReaderAt, limit uint64) ([]byte, error) {
	//this call does the check of elf file format
	f, err := elf.NewFile(rd)
	if err != nil {
		if _, ok := err.(*elf.FormatError); ok {
			return nil, NotElfFormat
		}
		return nil, err
	}
	defer f.Close()
	if f.Machine != elf.EM_AARCH64 {
		return nil, &wrongMachine{f.Machine}
	}

	base := ^uint64(0)
	var last uint64
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		if prog.Memsz > limit || prog.Vaddr > limit-prog.Memsz {
			return nil, &imageTooBig{prog.Vaddr + prog.Memsz, limit}
		}
		if prog.Vaddr < base {
			base = prog.Vaddr
		}
		if prog.Vaddr+prog.Memsz > last {
			last = prog.Vaddr + prog.Memsz
		}
	}
	if last == 0 {
		return nil, NoLoadableProgram
	}
	if base != 0 {
		return nil, &notLinkedAtZero{base}
	}
	if f.Entry != 0 {
		return nil, &entryNotAtStart{f.Entry}
	}
	out := make([]byte, last)
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
			continue
		}
		if _, err := io.ReadFull(prog.Open(), out[prog.Vaddr:prog.Vaddr+prog.Filesz]); err != nil {
			return nil, fmt.Errorf("reading segment at %#x: %v", prog.Vaddr, err)
		}
	}
	return out, nil
}
