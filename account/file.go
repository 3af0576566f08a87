package account

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/Zereker/cattlechat/logging"
)

// File is a Directory backed by a text file with one "name;hexhash" line per
// account. The file is cached in memory and reloaded whenever it changes on
// disk, so accounts can be provisioned by editing it.
type File struct {
	path   string
	logger logging.Logger

	mu       sync.RWMutex
	accounts map[string]Hash

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// OpenFile loads the account file at path, creating it if needed, and starts
// watching it for changes. Close stops the watcher.
func OpenFile(path string, logger logging.Logger) (*File, error) {
	if logger == nil {
		logger = logging.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "resolve account file path")
	}

	fh, err := os.OpenFile(abs, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "open account file")
	}
	fh.Close()

	f := &File{
		path:   abs,
		logger: logger,
		done:   make(chan struct{}),
	}
	if err := f.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("account file will not be reloaded", "path", abs, "error", err)
		return f, nil
	}
	// Watch the directory: editors often replace the file instead of writing it.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		logger.Warn("account file will not be reloaded", "path", abs, "error", err)
		return f, nil
	}

	f.watcher = watcher
	f.wg.Add(1)
	go f.watch()
	return f, nil
}

// Reload re-reads the account file. On error the previous accounts are kept.
func (f *File) Reload() error {
	fh, err := os.Open(f.path)
	if err != nil {
		return errors.Wrap(err, "open account file")
	}
	defer fh.Close()

	accounts, err := parseAccounts(fh)
	if err != nil {
		return errors.Wrapf(err, "parse %s", f.path)
	}

	f.mu.Lock()
	f.accounts = accounts
	f.mu.Unlock()
	return nil
}

func parseAccounts(r io.Reader) (map[string]Hash, error) {
	accounts := make(map[string]Hash)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		name, rest, ok := strings.Cut(scanner.Text(), string(nameDelimiter))
		if !ok {
			continue
		}
		hash, err := ParseHash(strings.TrimSpace(rest))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		// Lookups match the first line for a name; later ones are ignored.
		if _, dup := accounts[name]; !dup {
			accounts[name] = hash
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read account file")
	}
	return accounts, nil
}

func (f *File) watch() {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := f.Reload(); err != nil {
				f.logger.Error("reload account file", "path", f.path, "error", err)
				continue
			}
			f.logger.Debug("account file reloaded", "path", f.path, "accounts", f.count())
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("account file watcher", "error", err)
		}
	}
}

func (f *File) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.accounts)
}

// Login implements Directory.
func (f *File) Login(_ context.Context, name string, proof Hash, clientToken, serverToken uint32) (LoginResult, error) {
	f.mu.RLock()
	stored, ok := f.accounts[name]
	f.mu.RUnlock()

	if !ok {
		return LoginUnknownAccount, nil
	}
	return verify(stored, proof, clientToken, serverToken), nil
}

// Create implements Directory. The account is appended to the file.
func (f *File) Create(_ context.Context, name string, passwordHash Hash) (CreateResult, error) {
	if r := ValidateName(name); r != CreateSuccess {
		return r, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.accounts[name]; ok {
		return CreateAccountExists, nil
	}

	fh, err := os.OpenFile(f.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, errors.Wrap(err, "open account file for writing")
	}
	_, err = fmt.Fprintf(fh, "%s%c%s\n", name, nameDelimiter, passwordHash)
	if cerr := fh.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, errors.Wrap(err, "append account")
	}

	f.accounts[name] = passwordHash
	return CreateSuccess, nil
}

// Close stops watching the file.
func (f *File) Close() error {
	if f.watcher == nil {
		return nil
	}
	close(f.done)
	err := f.watcher.Close()
	f.wg.Wait()
	return err
}
