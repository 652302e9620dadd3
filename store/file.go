// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/digest"
	"github.com/grailbio/remit"
	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/liveset"
	"github.com/grailbio/remit/log"
	"github.com/grailbio/remit/values"
)

// File is a filesystem-backed store. Values are stored as JSON
// envelopes in files named by the hex representation of their key
// digest, i.e., of the form d6/0e67ce9..., so that resident results
// survive worker restarts. Because values cross an encoding
// boundary, they are limited to JSON-representable types.
type File struct {
	// Root is the directory that contains all stored values.
	Root string

	Log *log.Logger
}

// envelope is the on-disk representation of a stored value. The key
// is stored alongside the value so that scans can recover it from
// the (one-way) digest naming the file.
type envelope struct {
	Key   remit.Key
	Value values.T
}

func (s *File) path(key remit.Key) (dir, path string) {
	hex := key.Digest().Hex()
	dir = filepath.Join(s.Root, hex[:2])
	return dir, filepath.Join(dir, hex[2:])
}

// Put stores the value v under key. The returned size is the encoded
// size of the value on disk.
func (s *File) Put(ctx context.Context, key remit.Key, v values.T) (data.Size, error) {
	body, err := json.Marshal(envelope{Key: key, Value: v})
	if err != nil {
		return 0, errors.E("put", string(key), errors.Invalid, err)
	}
	tmpdir := filepath.Join(s.Root, "tmp")
	if err = os.MkdirAll(tmpdir, 0777); err != nil {
		return 0, errors.E("put", string(key), err)
	}
	tmp, err := ioutil.TempFile(tmpdir, "put")
	if err != nil {
		return 0, errors.E("put", string(key), err)
	}
	if _, err = tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, errors.E("put", string(key), err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, errors.E("put", string(key), err)
	}
	dir, path := s.path(key)
	if err = os.MkdirAll(dir, 0777); err != nil {
		os.Remove(tmp.Name())
		return 0, errors.E("put", string(key), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return 0, errors.E("put", string(key), err)
	}
	return data.Size(len(body)), nil
}

// Get returns the value stored under key.
func (s *File) Get(ctx context.Context, key remit.Key) (values.T, error) {
	_, path := s.path(key)
	body, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.E("get", string(key), err)
	}
	var env envelope
	if err = json.Unmarshal(body, &env); err != nil {
		return nil, errors.E("get", string(key), errors.Invalid, err)
	}
	return env.Value, nil
}

// Stat returns the encoded size of the value stored under key.
func (s *File) Stat(ctx context.Context, key remit.Key) (data.Size, error) {
	_, path := s.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.E("stat", string(key), err)
	}
	return data.Size(info.Size()), nil
}

// Release removes the values stored under the given keys. Keys with
// no stored value are ignored.
func (s *File) Release(ctx context.Context, keys ...remit.Key) error {
	for _, key := range keys {
		_, path := s.path(key)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.E("release", string(key), err)
		}
		// Clean up object subdirectories. (Ignores failure when nonempty.)
		os.Remove(filepath.Dir(path))
	}
	return nil
}

// Collect removes every value whose key digest is not contained in
// live. A nil live set removes everything.
func (s *File) Collect(ctx context.Context, live liveset.Liveset) error {
	var (
		w    walker
		n    int
		size data.Size
	)
	w.Init(s.Root)
	for w.Scan() {
		if live != nil && live.Contains(w.Digest()) {
			continue
		}
		size += data.Size(w.Info().Size())
		if err := os.Remove(w.Path()); err != nil {
			s.Log.Errorf("remove %q: %v", w.Path(), err)
		}
		os.Remove(filepath.Dir(w.Path()))
		n++
	}
	if live != nil {
		s.Log.Printf("collected %v objects (%s)", n, size)
	}
	return w.Err()
}

// Scan visits each stored key and its encoded size.
func (s *File) Scan(ctx context.Context, visit func(remit.Key, data.Size) error) error {
	var w walker
	w.Init(s.Root)
	for w.Scan() {
		body, err := ioutil.ReadFile(w.Path())
		if err != nil {
			return errors.E("scan", s.Root, err)
		}
		var env envelope
		if err = json.Unmarshal(body, &env); err != nil {
			return errors.E("scan", s.Root, errors.Invalid, err)
		}
		if err = visit(env.Key, data.Size(w.Info().Size())); err != nil {
			return err
		}
	}
	return w.Err()
}

// walker scans a store directory hierarchy, exposing a scanner-like
// interface over the stored objects. It skips the temporary
// directory and surfaces each object's key digest, parsed from its
// path.
type walker struct {
	root string
	err  error
	path string
	info os.FileInfo
	dgst digest.Digest
	todo []string
}

func (w *walker) Init(root string) {
	w.root = root
	w.todo = append(w.todo, root)
}

// Scan advances the walker to the next stored object. It returns
// false when the walk is exhausted or an error stops it; Err returns
// the error, if any.
func (w *walker) Scan() bool {
	for {
		if len(w.todo) == 0 || w.err != nil {
			return false
		}
		w.path, w.todo = w.todo[0], w.todo[1:]
		w.info, w.err = os.Stat(w.path)
		if os.IsNotExist(w.err) {
			w.err = nil
			continue
		} else if w.err != nil {
			return false
		}
		if w.info.IsDir() {
			if filepath.Base(w.path) == "tmp" {
				continue
			}
			var names []string
			names, w.err = readDirNames(w.path)
			if w.err != nil {
				return false
			}
			for i := range names {
				names[i] = filepath.Join(w.path, names[i])
			}
			w.todo = append(names, w.todo...)
			continue
		}
		first, last := filepath.Base(filepath.Dir(w.path)), filepath.Base(w.path)
		w.dgst, w.err = remit.Digester.Parse(first + last)
		if w.err != nil {
			return false
		}
		return true
	}
}

func (w *walker) Digest() digest.Digest { return w.dgst }
func (w *walker) Path() string          { return w.path }
func (w *walker) Info() os.FileInfo     { return w.info }
func (w *walker) Err() error            { return w.err }

func readDirNames(dirname string) ([]string, error) {
	f, err := os.Open(dirname)
	if err != nil {
		return nil, err
	}
	names, err := f.Readdirnames(-1)
	f.Close()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
