package machine

import "encoding/binary"

// seedStackFrame lays out the initial stack frame a MINIX process expects
// at start of day: argc, an argv offset table terminated by a 0 word, an
// envp offset table terminated by a 0 word, then the packed NUL-terminated
// argv strings followed by the packed NUL-terminated envp strings. It
// returns the frame's base address, which becomes the initial SP.
func (m *Machine) seedStackFrame(argv, env []string) uint16 {
	argvBytes, argvOffsets := packStrings(argv)
	envBytes, envOffsets := packStrings(env)

	headerSize := 2 + 2*(len(argv)+1) + 2*(len(env)+1)
	total := headerSize + len(argvBytes) + len(envBytes)
	if total%2 != 0 {
		total++
	}

	frameBase := len(m.mem) - total
	if frameBase < 0 {
		fault(0, "initial stack frame of %d bytes does not fit in %d bytes of memory", total, len(m.mem))
	}

	argvBase := frameBase + headerSize
	envBase := argvBase + len(argvBytes)

	w := binary.LittleEndian
	pos := frameBase
	w.PutUint16(m.mem[pos:], uint16(len(argv)))
	pos += 2
	for _, off := range argvOffsets {
		w.PutUint16(m.mem[pos:], uint16(argvBase+off))
		pos += 2
	}
	w.PutUint16(m.mem[pos:], 0)
	pos += 2
	for _, off := range envOffsets {
		w.PutUint16(m.mem[pos:], uint16(envBase+off))
		pos += 2
	}
	w.PutUint16(m.mem[pos:], 0)
	pos += 2

	copy(m.mem[pos:], argvBytes)
	pos += len(argvBytes)
	copy(m.mem[pos:], envBytes)

	return uint16(frameBase)
}

// packStrings concatenates strs as NUL-terminated bytes and returns the
// blob alongside each string's starting offset within it.
func packStrings(strs []string) ([]byte, []int) {
	var blob []byte
	offsets := make([]int, len(strs))
	for i, s := range strs {
		offsets[i] = len(blob)
		blob = append(blob, s...)
		blob = append(blob, 0)
	}
	return blob, offsets
}
