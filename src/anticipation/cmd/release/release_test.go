package main

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"rtcore/src/anticipation"
	"rtcore/src/hardware/sim"
	"rtcore/src/joy"
	"rtcore/src/lib/trust"
)

type segment struct {
	vaddr uint64
	data  []byte
	memsz uint64
}

// buildElf writes an executable with only program headers, which is all
// flattenElf looks at.
func buildElf(machine elf.Machine, entry uint64, segs []segment) []byte {
	const ehsize, phentsize = 64, 56
	buf := bytes.Buffer{}
	ident := [16]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)}
	buf.Write(ident[:])
	le := binary.LittleEndian
	binary.Write(&buf, le, uint16(elf.ET_EXEC))
	binary.Write(&buf, le, uint16(machine))
	binary.Write(&buf, le, uint32(elf.EV_CURRENT))
	binary.Write(&buf, le, entry)
	binary.Write(&buf, le, uint64(ehsize)) //phoff
	binary.Write(&buf, le, uint64(0))      //shoff
	binary.Write(&buf, le, uint32(0))      //flags
	binary.Write(&buf, le, uint16(ehsize))
	binary.Write(&buf, le, uint16(phentsize))
	binary.Write(&buf, le, uint16(len(segs)))
	binary.Write(&buf, le, uint16(64)) //shentsize
	binary.Write(&buf, le, uint16(0))  //shnum
	binary.Write(&buf, le, uint16(0))  //shstrndx

	off := uint64(ehsize + phentsize*len(segs))
	for _, s := range segs {
		binary.Write(&buf, le, uint32(elf.PT_LOAD))
		binary.Write(&buf, le, uint32(elf.PF_R|elf.PF_X))
		binary.Write(&buf, le, off)
		binary.Write(&buf, le, s.vaddr)
		binary.Write(&buf, le, s.vaddr)
		binary.Write(&buf, le, uint64(len(s.data)))
		binary.Write(&buf, le, s.memsz)
		binary.Write(&buf, le, uint64(0x1000))
		off += uint64(len(s.data))
	}
	for _, s := range segs {
		buf.Write(s.data)
	}
	return buf.Bytes()
}

func TestFlattenElf(t *testing.T) {
	text := []byte{0xd4, 0x00, 0x00, 0x01, 0xd4, 0x00, 0x00, 0x41}
	data := []byte{1, 2, 3, 4}
	f := buildElf(elf.EM_AARCH64, 0, []segment{
		{vaddr: 0, data: text, memsz: uint64(len(text))},
		{vaddr: 0x1000, data: data, memsz: 0x20},
	})
	out, err := flattenElf(bytes.NewReader(f), 1<<20)
	if err != nil {
		t.Fatalf("flatten failed: %v", err)
	}
	if len(out) != 0x1020 {
		t.Fatalf("image should run to the end of bss, got %#x bytes", len(out))
	}
	if !bytes.Equal(out[:8], text) || !bytes.Equal(out[0x1000:0x1004], data) {
		t.Errorf("segments not placed by address")
	}
	for i := 0x1004; i < 0x1020; i++ {
		if out[i] != 0 {
			t.Errorf("bss byte %#x is %#x", i, out[i])
		}
	}
}

func TestFlattenElfRejects(t *testing.T) {
	one := []segment{{vaddr: 0, data: []byte{1, 2, 3, 4}, memsz: 4}}
	if _, err := flattenElf(bytes.NewReader([]byte("not an elf file at all, sorry about that........................")), 1<<30); err != NotElfFormat {
		t.Errorf("expected NotElfFormat, got %v", err)
	}
	var wm *wrongMachine
	if _, err := flattenElf(bytes.NewReader(buildElf(elf.EM_X86_64, 0, one)), 1<<30); !errors.As(err, &wm) {
		t.Errorf("expected wrong machine, got %v", err)
	}
	var nz *notLinkedAtZero
	high := []segment{{vaddr: 0x40_0000, data: []byte{1}, memsz: 1}}
	if _, err := flattenElf(bytes.NewReader(buildElf(elf.EM_AARCH64, 0x40_0000, high)), 1<<30); !errors.As(err, &nz) || nz.base != 0x40_0000 {
		t.Errorf("expected not linked at zero, got %v", err)
	}
	var ns *entryNotAtStart
	if _, err := flattenElf(bytes.NewReader(buildElf(elf.EM_AARCH64, 4, one)), 1<<30); !errors.As(err, &ns) {
		t.Errorf("expected entry complaint, got %v", err)
	}
	if _, err := flattenElf(bytes.NewReader(buildElf(elf.EM_AARCH64, 0, nil)), 1<<30); err != NoLoadableProgram {
		t.Errorf("expected NoLoadableProgram, got %v", err)
	}
}

func TestHexRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	data := make([]byte, 0x1_0123)
	rnd.Read(data)
	enc := encodeHex(data)
	if !strings.HasSuffix(enc, ":00000001FF\n") {
		t.Errorf("missing end of file record")
	}
	if strings.Count(enc, ":02000004") != 2 {
		t.Errorf("expected one extended linear address record per 64K")
	}
	got, err := decodeHex(strings.NewReader(enc), 1<<20)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip changed the image (%d bytes in, %d out)", len(data), len(got))
	}
}

func TestHexDecodeErrors(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"checksum", ":0100000001FF\n:00000001FF\n", "bad checksum"},
		{"length", ":0200000001FE\n:00000001FF\n", "declared length"},
		{"no eof", ":0100000001FE\n", "no end of file"},
		{"entry", ":0400000500000010E7\n:00000001FF\n", "address zero"},
		{"segment type", ":0400000300000000F9\n:00000001FF\n", "unimplemented"},
	}
	for _, c := range cases {
		_, err := decodeHex(strings.NewReader(c.in), 1<<20)
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: expected %q, got %v", c.name, c.want, err)
		}
	}
	img, err := decodeHex(strings.NewReader(":0100000001FE\n:00000001FF\n"), 1<<20)
	if err != nil || len(img) != 1 || img[0] != 1 {
		t.Errorf("one byte image decoded as %v, %v", img, err)
	}
}

func TestImageLimit(t *testing.T) {
	var tb *imageTooBig
	bss := []segment{{vaddr: 0, data: []byte{1, 2, 3, 4}, memsz: 0x1_0000_0000}}
	if _, err := flattenElf(bytes.NewReader(buildElf(elf.EM_AARCH64, 0, bss)), 0x8000); !errors.As(err, &tb) || tb.limit != 0x8000 {
		t.Errorf("huge bss should be refused before allocating, got %v", err)
	}
	wrap := []segment{{vaddr: 0, data: []byte{1}, memsz: 1}, {vaddr: ^uint64(0) - 0xf, data: []byte{2}, memsz: 0x20}}
	if _, err := flattenElf(bytes.NewReader(buildElf(elf.EM_AARCH64, 0, wrap)), 0x8000); !errors.As(err, &tb) {
		t.Errorf("segment wrapping the address space should be refused, got %v", err)
	}

	// one byte at 0xffff0000, via an extended linear address record
	far := ":02000004FFFFFC\n:0100000001FE\n:00000001FF\n"
	if _, err := decodeHex(strings.NewReader(far), 0x8000); err == nil || !strings.Contains(err.Error(), "jobs only see") {
		t.Errorf("far hex data should be refused, got %v", err)
	}
	if img, err := decodeHex(strings.NewReader(encodeHex(make([]byte, 0x8000))), 0x8000); err != nil || len(img) != 0x8000 {
		t.Errorf("image exactly at the limit should load, got %d bytes, %v", len(img), err)
	}

	l := testLayout()
	if imageLimit(l) != l.CodeSize {
		t.Errorf("limit should be the smaller code region, got %#x", imageLimit(l))
	}
	l.LowWindow = 0x1000
	if imageLimit(l) != 0x1000 {
		t.Errorf("limit should be the low window, got %#x", imageLimit(l))
	}
}

func testLayout() joy.Layout {
	l := joy.DefaultLayout()
	l.HeapSize = 0x1_0000
	l.CodeBase = l.HeapBase + l.HeapSize
	l.CodeSize = 0x4000
	l.RingBase = l.CodeBase + l.CodeSize
	l.RingSlots = 2
	return l
}

func TestSubmit(t *testing.T) {
	l := testLayout()
	mem := sim.AlignedBytes(l.WindowSize())
	img := &image{name: "job", data: []byte{0xaa, 0xbb, 0xcc}}

	if _, err := submit(mem, l, img, submission{memory: 0x800, tries: 1}); err == nil {
		t.Errorf("unformatted ring should be refused without format")
	}
	d, err := submit(mem, l, img, submission{offset: 0x1000, memory: 0x800, tries: 1, format: true})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if d.EntryPoint != l.CodeBase+0x1000 || d.ImageSize != 3 || d.MemoryRequest != 0x800 {
		t.Errorf("unexpected descriptor %v", d)
	}
	code := l.CodeBase - l.WindowBase() + 0x1000
	if !bytes.Equal(mem[code:code+3], img.data) {
		t.Errorf("image not copied into the code region")
	}

	r, err := anticipation.Attach(mem[l.RingBase-l.WindowBase():])
	if err != nil {
		t.Fatalf("ring not formatted: %v", err)
	}
	if got, ok := r.Pop(); !ok || got != d {
		t.Errorf("popped %v, expected %v", got, d)
	}

	if _, err := submit(mem, l, img, submission{offset: 0x10}); err == nil {
		t.Errorf("unaligned offset should be refused")
	}
	big := &image{name: "big", data: make([]byte, 0x2000)}
	if _, err := submit(mem, l, big, submission{offset: 0x3000}); err == nil {
		t.Errorf("image past the code region should be refused")
	}
}

func TestSubmitGivesUpWhenFull(t *testing.T) {
	l := testLayout()
	mem := sim.AlignedBytes(l.WindowSize())
	img := &image{name: "job", data: []byte{1}}
	for i := 0; i < 2; i++ {
		if _, err := submit(mem, l, img, submission{tries: 1, format: true}); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	_, err := submit(mem, l, img, submission{tries: 3})
	if !errors.Is(err, anticipation.ErrRingFull) {
		t.Errorf("expected ring full, got %v", err)
	}
}

func TestBootParams(t *testing.T) {
	l := joy.DefaultLayout()
	p := bootParams(l)
	if msg := p.Validate(); msg != "" {
		t.Fatalf("default layout gives bad parameters: %s", msg)
	}
	back, err := joy.LayoutFromBootParams(p)
	if err != nil || back != l {
		t.Errorf("layout did not survive the trip: %v", err)
	}
	b, err := encodeParams(p)
	if err != nil {
		t.Fatalf("encoding failed: %v", err)
	}
	if len(b) != 80 || binary.LittleEndian.Uint64(b[32:]) != l.HeapBase {
		t.Errorf("unexpected encoding %x", b)
	}
	if iow(driverType, startCPUNr, uintptr(len(b))) != 0x40507201 {
		t.Errorf("control call number is %#x", iow(driverType, startCPUNr, uintptr(len(b))))
	}
}

func TestTail(t *testing.T) {
	in := "ERROR: job fault\r\n WARN: slow\r\n INFO: hello\r\nDEBUG: switch\r\nSTATS[ring]: drained 1\r\n\r\nplain"
	out := bytes.Buffer{}
	logger := trust.NewLogger(&bytes.Buffer{}, trust.WarnMask, nil)
	if err := tail(strings.NewReader(in), &out, 0, logger); err != nil {
		t.Fatalf("tail: %v", err)
	}
	want := "!!! job fault\n### slow\nhello\nplain\n"
	if out.String() != want {
		t.Errorf("got %q, expected %q", out.String(), want)
	}

	out.Reset()
	tail(strings.NewReader(in), &out, 2, logger)
	if !strings.Contains(out.String(), "@@@ switch") || !strings.Contains(out.String(), "STATS[ring]") {
		t.Errorf("verbose tail should show debug and stats: %q", out.String())
	}

	long := strings.Repeat("x", 600) + "\n"
	l, dropped, err := readLine(strings.NewReader(long), make([]byte, 512))
	if err != nil || len(l) != 511 || dropped != 89 {
		t.Errorf("long line: %d chars, %d dropped, %v", len(l), dropped, err)
	}
}
