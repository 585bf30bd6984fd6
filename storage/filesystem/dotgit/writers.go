package dotgit

import (
	"fmt"

	"github.com/go-git/go-billy/v5"

	"github.com/grit-vcs/grit/plumbing/format/objfile"
)

// ObjectWriter writes a loose object to a temporary file and, on Close,
// moves it into its content-addressed location under objects/.
type ObjectWriter struct {
	objfile.Writer
	fs billy.Filesystem
	f  billy.File
}

func newObjectWriter(fs billy.Filesystem) (*ObjectWriter, error) {
	f, err := fs.TempFile(fs.Join(objectsPath, packPath), "tmp_obj_")
	if err != nil {
		return nil, err
	}

	return &ObjectWriter{
		Writer: (*objfile.NewWriter(f)),
		fs:     fs,
		f:      f,
	}, nil
}

func (w *ObjectWriter) Close() error {
	if err := w.Writer.Close(); err != nil {
		return err
	}

	if err := w.f.Close(); err != nil {
		return err
	}

	return w.save()
}

func (w *ObjectWriter) save() error {
	hash := w.Hash().String()
	file := w.fs.Join(objectsPath, hash[0:2], hash[2:40])

	return w.fs.Rename(w.f.Name(), file)
}

func (w *ObjectWriter) String() string {
	if w.f == nil {
		return "" // not initialized
	}

	return fmt.Sprintf("dir: %s, file: %s", w.fs.Root(), w.f.Name())
}
