// Package vcsadapter wraps the host VCS binary as a subprocess, launching
// it and parsing its output. All I/O is blocking; the only in-process
// concurrency is the copy goroutine teeIfDebug starts under debug verbosity.
package vcsadapter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// Adapter talks to a VCS binary rooted at Dir.
type Adapter struct {
	Dir string
	Bin string // defaults to "git"
}

// New returns an Adapter for the repository at dir.
func New(dir string) *Adapter {
	return &Adapter{Dir: dir}
}

func (a *Adapter) bin() string {
	if a.Bin != "" {
		return a.Bin
	}
	return "git"
}

// VCSError wraps a non-zero exit from the VCS binary.
type VCSError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *VCSError) Error() string {
	return fmt.Sprintf("%s %s: exit %d: %s", "git", strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Stderr))
}

// command builds an *exec.Cmd with the pager disabled, prompts disabled,
// and stdin not inherited.
func (a *Adapter) command(args ...string) *exec.Cmd {
	full := append([]string{"--no-pager"}, args...)
	cmd := exec.Command(a.bin(), full...)
	cmd.Dir = a.Dir
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_PAGER=cat")
	log.WithField("args", full).Debug("vcsadapter: exec")
	return cmd
}

// run executes the VCS binary and treats a non-zero exit as an error.
func (a *Adapter) run(args ...string) ([]byte, error) {
	cmd := a.command(args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return stdout.Bytes(), &VCSError{Args: args, ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, errors.Wrapf(err, "exec %s %v", a.bin(), args)
	}
	return stdout.Bytes(), nil
}

// runTolerant executes the VCS binary and reports its exit code without
// treating non-zero as a Go error, for operations (mainly config lookups)
// that use exit status to mean "not set" rather than "failed".
func (a *Adapter) runTolerant(args ...string) (stdout []byte, exitCode int, err error) {
	cmd := a.command(args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	err = cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return out.Bytes(), exitErr.ExitCode(), nil
		}
		return nil, -1, errors.Wrapf(err, "exec %s %v", a.bin(), args)
	}
	return out.Bytes(), 0, nil
}

// splitNUL splits NUL-delimited output, dropping a trailing empty element
// left by a terminal NUL, as produced by diff-tree -z / check-attr -z.
func splitNUL(buf []byte) []string {
	if len(buf) == 0 {
		return nil
	}
	parts := strings.Split(string(buf), "\x00")
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// RevListNotRemotes returns commits reachable from localRef that are not
// reachable from any ref under remotes/<remoteName>.
func (a *Adapter) RevListNotRemotes(localRef, remoteName string) (revs []string, err error) {
	defer Return(&err)
	out, err := a.run("rev-list", localRef, "--not", "--remotes="+remoteName)
	Ck(err)
	return splitLines(out), nil
}

// RevListAll returns every commit reachable from any ref.
func (a *Adapter) RevListAll() (revs []string, err error) {
	defer Return(&err)
	out, err := a.run("rev-list", "--all")
	Ck(err)
	return splitLines(out), nil
}

func splitLines(buf []byte) []string {
	trimmed := strings.TrimRight(string(buf), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

// ChangedEntry is one line of a diff-tree report: a status character (A,
// M, D, R<score>, C<score>, or X for "something is wrong") and the
// affected path.
type ChangedEntry struct {
	Status string
	Path   string
}

// ChangedEntries returns the files touched by commit, relative to its
// first parent (or the empty tree, for a root commit).
func (a *Adapter) ChangedEntries(commit string) (entries []ChangedEntry, err error) {
	defer Return(&err)
	out, err := a.run("diff-tree", "--no-commit-id", "--name-status", "-r", "-z", "--root", commit)
	Ck(err)
	fields := splitNUL(out)
	for i := 0; i+1 < len(fields); i += 2 {
		entries = append(entries, ChangedEntry{Status: fields[i], Path: fields[i+1]})
	}
	return entries, nil
}

// ReadBlob returns the full content of the blob named by revPath
// ("commit_id:path").
func (a *Adapter) ReadBlob(revPath string) (buf []byte, err error) {
	defer Return(&err)
	cmd := a.command("cat-file", "-p", revPath)
	stdout, err := cmd.StdoutPipe()
	Ck(err)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err = cmd.Start()
	Ck(err)

	var readErr error
	buf, readErr = teeIfDebug(stdout, revPath)
	waitErr := cmd.Wait()
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			err = &VCSError{Args: []string{"cat-file", "-p", revPath}, ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
			return
		}
		err = errors.Wrapf(waitErr, "exec %s cat-file -p %s", a.bin(), revPath)
		return
	}
	err = readErr
	return
}

// ReadBlobPrefix reads at most n bytes of the blob named by revPath,
// closing the subprocess pipe early once enough bytes are read. The VCS's
// resulting broken-pipe error on the writer side is expected and
// suppressed; only read errors on our side are surfaced.
func (a *Adapter) ReadBlobPrefix(revPath string, n int) (out []byte, err error) {
	defer Return(&err)
	cmd := a.command("cat-file", "-p", revPath)
	stdout, err := cmd.StdoutPipe()
	Ck(err)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err = cmd.Start()
	Ck(err)

	buf := make([]byte, n)
	read := 0
	for read < n {
		nr, rerr := stdout.Read(buf[read:])
		read += nr
		if rerr != nil {
			if errors.Cause(rerr) != io.EOF {
				log.WithError(rerr).Debug("vcsadapter: short read on blob prefix")
			}
			break
		}
	}

	_ = stdout.Close()
	_ = cmd.Wait() // expected to report a broken-pipe style error; ignored

	return buf[:read], nil
}

// BlobSize returns the byte size of the blob named by revPath without
// reading its content.
func (a *Adapter) BlobSize(revPath string) (size int64, err error) {
	defer Return(&err)
	out, err := a.run("cat-file", "-s", revPath)
	Ck(err)
	size, err = strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	Ck(err)
	return size, nil
}

// StagedPaths returns the paths that differ between the index and HEAD.
func (a *Adapter) StagedPaths() (paths []string, err error) {
	defer Return(&err)
	out, err := a.run("diff", "--cached", "--name-only", "-z")
	Ck(err)
	return splitNUL(out), nil
}

// FilterAttribute returns the value of the "filter" attribute for path,
// as recorded in the index (staged .gitattributes), not the worktree.
func (a *Adapter) FilterAttribute(path string) (string, error) {
	return a.attribute(path, "filter")
}

// AttributeIsSet reports whether attribute name is set (not unset, not
// unspecified) for path in the index.
func (a *Adapter) AttributeIsSet(path, name string) (set bool, err error) {
	defer Return(&err)
	v, err := a.attribute(path, name)
	Ck(err)
	return v == "set", nil
}

func (a *Adapter) attribute(path, name string) (value string, err error) {
	defer Return(&err)
	out, err := a.run("check-attr", "--cached", "-z", name, "--", path)
	Ck(err)
	fields := splitNUL(out)
	// check-attr -z emits <path> NUL <attr> NUL <value> NUL ...
	if len(fields) < 3 {
		return "unspecified", nil
	}
	return fields[2], nil
}

// ConfigGetInt reads an integer config key from file. ok is false if the
// key is not set; that is not treated as an error.
func (a *Adapter) ConfigGetInt(key, file string) (value int, ok bool, err error) {
	defer Return(&err)
	out, code, err := a.runTolerant("config", "-f", file, "--int", "--get", key)
	Ck(err)
	if code != 0 {
		return 0, false, nil
	}
	n, perr := strconv.Atoi(strings.TrimSpace(string(out)))
	if perr != nil {
		return 0, false, errors.Wrapf(perr, "parsing config %s", key)
	}
	return n, true, nil
}

// ConfigGetRegex returns every "key value" line matching pattern in file.
// An empty result (no matches) is not an error.
func (a *Adapter) ConfigGetRegex(pattern, file string) (lines []string, err error) {
	defer Return(&err)
	out, code, err := a.runTolerant("config", "-f", file, "--get-regexp", pattern)
	Ck(err)
	if code != 0 {
		return nil, nil
	}
	return splitLines(out), nil
}

// ConfigSet writes key=value into file.
func (a *Adapter) ConfigSet(key, value, file string) (err error) {
	defer Return(&err)
	_, err = a.run("config", "-f", file, key, value)
	Ck(err)
	return nil
}

// GitDir returns the repository's control directory (".git" or
// equivalent), used to locate the Local Cache.
func (a *Adapter) GitDir() (dir string, err error) {
	defer Return(&err)
	out, err := a.run("rev-parse", "--git-dir")
	Ck(err)
	dir = strings.TrimSpace(string(out))
	if !isAbs(dir) {
		dir = a.Dir + string(os.PathSeparator) + dir
	}
	return dir, nil
}

func isAbs(p string) bool {
	return strings.HasPrefix(p, "/")
}
