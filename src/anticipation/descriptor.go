package anticipation

import (
	"encoding/binary"
	"fmt"
)

// DescriptorSize is the encoded size of a JobDescriptor.
const DescriptorSize = 24

// JobDescriptor is what the host submits for each job.  EntryPoint is the
// physical address of the job's image in the code region, which is also
// where execution starts.
type JobDescriptor struct {
	EntryPoint    uint64
	ImageSize     uint64
	MemoryRequest uint64
}

// Encode writes the descriptor little endian into the first DescriptorSize
// bytes of b.
func (j JobDescriptor) Encode(b []byte) {
	_ = b[DescriptorSize-1]
	binary.LittleEndian.PutUint64(b[0:], j.EntryPoint)
	binary.LittleEndian.PutUint64(b[8:], j.ImageSize)
	binary.LittleEndian.PutUint64(b[16:], j.MemoryRequest)
}

func DecodeJobDescriptor(b []byte) JobDescriptor {
	_ = b[DescriptorSize-1]
	return JobDescriptor{
		EntryPoint:    binary.LittleEndian.Uint64(b[0:]),
		ImageSize:     binary.LittleEndian.Uint64(b[8:]),
		MemoryRequest: binary.LittleEndian.Uint64(b[16:]),
	}
}

func (j JobDescriptor) String() string {
	return fmt.Sprintf("job[entry=%#x image=%#x mem=%#x]", j.EntryPoint, j.ImageSize, j.MemoryRequest)
}
