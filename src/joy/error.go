package joy

import "fmt"

// A JoyError packs the subsystem that raised it, the pid that was current
// and an error number into one word, so it can be stored and reported
// without allocating.
const subsystemMask = 0x00ff_0000_0000_0000
const pidMask = 0x0000_ffff_0000_0000
const errorNumberMask = 0x0000_0000_0000_ffff

const JoyNoError = JoyError(0)

// Error numbers
const (
	ENOMEM   = 1
	EINVAL   = 2
	EASSERT  = 3
	EUNKNOWN = 4
)

// Subsystems
const (
	MemorySubsystem    = 1
	MMUSubsystem       = 2
	ProcessSubsystem   = 3
	SchedulerSubsystem = 4
	SyscallSubsystem   = 5
	FaultSubsystem     = 6
	AssertSubsystem    = 7
)

var ErrorMemoryExhausted = errorValue(MemorySubsystem, ENOMEM)
var ErrorMMUNoTablePage = errorValue(MMUSubsystem, ENOMEM)
var ErrorMMUBadRange = errorValue(MMUSubsystem, EINVAL)
var ErrorProcessTableFull = errorValue(ProcessSubsystem, ENOMEM)
var ErrorProcessBadPid = errorValue(ProcessSubsystem, EINVAL)
var ErrorReadyQueueFull = errorValue(SchedulerSubsystem, ENOMEM)
var ErrorSyscallFromKernel = errorValue(SyscallSubsystem, EINVAL)
var ErrorFaultInKernel = errorValue(FaultSubsystem, EUNKNOWN)
var ErrorAssertion = errorValue(AssertSubsystem, EASSERT)

type JoyError uint64
type RawJoyError uint64 // error with just the constant part of the value filled in

var errorMap = map[RawJoyError]string{
	ErrorMemoryExhausted:   "kernel heap exhausted",
	ErrorMMUNoTablePage:    "no memory for a page table page",
	ErrorMMUBadRange:       "mapping range wraps the address space",
	ErrorProcessTableFull:  "process table is full",
	ErrorProcessBadPid:     "process id out of range",
	ErrorReadyQueueFull:    "ready or waiting queue is full",
	ErrorSyscallFromKernel: "syscall issued by the kernel process",
	ErrorFaultInKernel:     "synchronous exception in kernel code",
	ErrorAssertion:         "kernel assertion failed",
}

func errorValue(subsys byte, errorNumber uint16) RawJoyError {
	ss := subsystemMask & (uint64(subsys) << 48)
	en := errorNumberMask & (uint64(errorNumber) << 0)
	return RawJoyError(ss | en)
}

// MakeError adds the dynamic fields (the pid) to the error value.
func MakeError(rawError RawJoyError, pid uint32) JoyError {
	raw := uint64(rawError)
	p := (uint64(pid) << 32) & pidMask
	return JoyError(raw | p)
}

func (j JoyError) Raw() RawJoyError {
	return RawJoyError(uint64(j) &^ pidMask)
}

func (j JoyError) Pid() uint32 {
	return uint32((uint64(j) & pidMask) >> 32)
}

func (j JoyError) Subsystem() byte {
	return byte((uint64(j) & subsystemMask) >> 48)
}

func (j JoyError) Number() uint16 {
	return uint16(uint64(j) & errorNumberMask)
}

// Strerror names an error number the way the C library would.
func Strerror(number uint16) string {
	switch number {
	case 0:
		return "no error"
	case ENOMEM:
		return "out of memory"
	case EINVAL:
		return "invalid argument"
	case EASSERT:
		return "assertion failed"
	}
	return "unknown error"
}

func (j JoyError) Error() string {
	if j == JoyNoError {
		return "no error"
	}
	t, ok := errorMap[j.Raw()]
	if !ok {
		t = "unknown error code"
	}
	return fmt.Sprintf("pid %d: %s (%s)", j.Pid(), t, Strerror(j.Number()))
}
