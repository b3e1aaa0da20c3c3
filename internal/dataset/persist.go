package dataset

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/samuelless/chatclm/internal/clmerr"
	"github.com/samuelless/chatclm/internal/tokens"
)

// magic is the file header for ChatCLM dataset checkpoints.
var magic = [4]byte{'C', 'L', 'M', 'D'}

const formatVersion = uint16(1)

// Save serializes the dataset to a self-describing binary file.
// Format:
//
//	[4]byte  magic
//	uint16   version
//	uint32   sentenceCount
//	--- per sentence ---
//	uint32   tokenCount
//	uint64   token[tokenCount]
func (d Dataset) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return clmerr.Wrap(clmerr.Io, fmt.Errorf("create %s: %w", path, err))
	}
	defer f.Close()

	w := &binaryWriter{w: f}
	w.write(magic)
	w.writeU16(formatVersion)
	w.writeU32(uint32(len(d.data)))
	for _, s := range d.data {
		w.writeU32(uint32(len(s)))
		for _, t := range s {
			w.writeU64(uint64(t))
		}
	}
	if w.err != nil {
		return clmerr.Wrap(clmerr.Io, w.err)
	}
	return nil
}

// Load deserializes a dataset from a file previously written by Save.
func Load(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, clmerr.Wrap(clmerr.Io, fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	r := &binaryReader{r: f}

	var gotMagic [4]byte
	r.read(&gotMagic)
	if gotMagic != magic {
		return Dataset{}, clmerr.Wrap(clmerr.Parse, fmt.Errorf("bad magic in %s — dataset checkpoint may be corrupted", path))
	}
	version := r.readU16()
	if version != formatVersion {
		return Dataset{}, clmerr.Wrap(clmerr.Parse, fmt.Errorf("unsupported dataset format version %d (want %d)", version, formatVersion))
	}
	count := r.readU32()
	if r.err != nil {
		return Dataset{}, clmerr.Wrap(clmerr.Parse, r.err)
	}

	data := make([][]tokens.Token, count)
	for i := range data {
		n := r.readU32()
		seq := make([]tokens.Token, n)
		for j := range seq {
			seq[j] = tokens.Token(r.readU64())
		}
		data[i] = seq
	}
	if r.err != nil {
		return Dataset{}, clmerr.Wrap(clmerr.Parse, r.err)
	}

	return Dataset{data: data}, nil
}

type binaryWriter struct {
	w   io.Writer
	err error
}

func (bw *binaryWriter) write(v interface{}) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.BigEndian, v)
}
func (bw *binaryWriter) writeU16(v uint16) { bw.write(v) }
func (bw *binaryWriter) writeU32(v uint32) { bw.write(v) }
func (bw *binaryWriter) writeU64(v uint64) { bw.write(v) }

type binaryReader struct {
	r   io.Reader
	err error
}

func (br *binaryReader) read(v interface{}) {
	if br.err != nil {
		return
	}
	br.err = binary.Read(br.r, binary.BigEndian, v)
}
func (br *binaryReader) readU16() uint16 {
	var v uint16
	br.read(&v)
	return v
}
func (br *binaryReader) readU32() uint32 {
	var v uint32
	br.read(&v)
	return v
}
func (br *binaryReader) readU64() uint64 {
	var v uint64
	br.read(&v)
	return v
}
