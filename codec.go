package gptag

import "math"

// Wire format, version 3. Fixed MSB-first field order; a CRC-16 trailer
// covers every data bit. The version field sits at a fixed offset so decode
// can dispatch before trusting the rest of the layout.
const (
	tagIDBits    = 12
	versionBits  = 4
	accuracyBits = 2
	floatBits    = 64

	versionFieldOffset = tagIDBits

	// CurrentVersion is the only defined wire layout.
	CurrentVersion = 3
)

// versionSpec fixes payload length and checksum width for one version.
type versionSpec struct {
	dataBits     int
	checksumBits int
}

var versionTable = map[uint8]versionSpec{
	CurrentVersion: {
		dataBits:     tagIDBits + versionBits + accuracyBits + 8*floatBits,
		checksumBits: 16,
	},
}

// EncodedBits is the total encoded length (data plus checksum) for a version;
// ok is false for undefined versions.
func EncodedBits(version uint8) (int, bool) {
	spec, ok := versionTable[version]
	if !ok {
		return 0, false
	}
	return spec.dataBits + spec.checksumBits, true
}

// EncodePayload serializes a payload to its wire bit sequence.
func EncodePayload(p TagPayload) ([]bool, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	spec, ok := versionTable[p.VersionID]
	if !ok {
		return nil, ErrUnsupportedVersion
	}

	bits := make([]bool, 0, spec.dataBits+spec.checksumBits)
	bits = appendUint(bits, uint64(p.TagID), tagIDBits)
	bits = appendUint(bits, uint64(p.VersionID), versionBits)
	bits = appendUint(bits, uint64(p.Accuracy), accuracyBits)
	bits = appendUint(bits, math.Float64bits(p.Scale), floatBits)
	bits = appendUint(bits, math.Float64bits(p.Latitude), floatBits)
	bits = appendUint(bits, math.Float64bits(p.Longitude), floatBits)
	bits = appendUint(bits, math.Float64bits(p.Altitude), floatBits)
	for _, c := range p.Orientation {
		bits = appendUint(bits, math.Float64bits(c), floatBits)
	}

	crc := crc16(bits)
	bits = appendUint(bits, uint64(crc), spec.checksumBits)
	return bits, nil
}

// DecodePayload reverses EncodePayload. It dispatches on the version field,
// verifies the checksum, then unpacks. decode(encode(p)) == p for every
// payload EncodePayload accepts.
func DecodePayload(bits []bool) (TagPayload, error) {
	if len(bits) < versionFieldOffset+versionBits {
		return TagPayload{}, ErrUnsupportedVersion
	}
	version := uint8(readUint(bits, versionFieldOffset, versionBits))
	spec, ok := versionTable[version]
	if !ok {
		return TagPayload{}, ErrUnsupportedVersion
	}
	total := spec.dataBits + spec.checksumBits
	if len(bits) < total {
		return TagPayload{}, ErrChecksumMismatch
	}

	data := bits[:spec.dataBits]
	want := uint16(readUint(bits, spec.dataBits, spec.checksumBits))
	if crc16(data) != want {
		return TagPayload{}, ErrChecksumMismatch
	}

	off := 0
	next := func(width int) uint64 {
		v := readUint(data, off, width)
		off += width
		return v
	}

	p := TagPayload{
		TagID:     uint16(next(tagIDBits)),
		VersionID: uint8(next(versionBits)),
		Accuracy:  uint8(next(accuracyBits)),
		Scale:     math.Float64frombits(next(floatBits)),
		Latitude:  math.Float64frombits(next(floatBits)),
		Longitude: math.Float64frombits(next(floatBits)),
		Altitude:  math.Float64frombits(next(floatBits)),
	}
	for i := range p.Orientation {
		p.Orientation[i] = math.Float64frombits(next(floatBits))
	}
	return p, nil
}

func appendUint(bits []bool, v uint64, width int) []bool {
	for i := width - 1; i >= 0; i-- {
		bits = append(bits, v>>uint(i)&1 == 1)
	}
	return bits
}

func readUint(bits []bool, offset, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		v <<= 1
		if bits[offset+i] {
			v |= 1
		}
	}
	return v
}

// crc16 is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF) computed directly
// over the bit sequence, MSB first. Hamming distance 4 at this length, so any
// 1-3 flipped bits are caught.
func crc16(bits []bool) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range bits {
		in := uint16(0)
		if b {
			in = 1
		}
		if crc>>15^in == 1 {
			crc = crc<<1 ^ 0x1021
		} else {
			crc <<= 1
		}
	}
	return crc
}
