package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// DumpFile prints the header and the slots of a database file for debugging.
// head limits the number of slots printed; zero or less prints all of them.
func DumpFile(w io.Writer, path string, head int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, headerBuf); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	var h Header
	if err := h.Decode(headerBuf); err != nil {
		return err
	}
	fmt.Fprintf(w, "Header\n")
	fmt.Fprintf(w, "  Signature:   %q (valid: %t)\n", h.Signature, h.IsValid())
	fmt.Fprintf(w, "  Version:     %d\n", h.Version)
	fmt.Fprintf(w, "  Records:     %d\n", h.RecordCount)
	fmt.Fprintf(w, "  Data offset: %d\n", h.DataOffset)
	fmt.Fprintln(w)

	if h.DataOffset > HeaderSize {
		if _, err := f.Seek(h.DataOffset, io.SeekStart); err != nil {
			return fmt.Errorf("seeking to data: %w", err)
		}
	}

	slotBuf := make([]byte, RecordSize)
	slot, live := 0, 0
	for {
		_, err := io.ReadFull(f, slotBuf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading slot %d: %w", slot, err)
		}

		var p Product
		p.Decode(slotBuf)
		offset := h.DataOffset + int64(slot)*RecordSize
		if p.IsValid() {
			live++
			fmt.Fprintf(w, "Slot #%d @%d  %s\n", slot, offset, p)
		} else {
			fmt.Fprintf(w, "Slot #%d @%d  <free>\n", slot, offset)
		}

		slot++
		if slot == head {
			break
		}
	}

	fmt.Fprintf(w, "Total: %d slots, %d live records\n", slot, live)
	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// sameFile reports whether both paths name one existing file.
func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// copyFile replaces dst with the contents of src.
func copyFile(src, dst string, mode os.FileMode) error {
	if ok, err := fileExists(src); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%s: %w", src, fs.ErrNotExist)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
