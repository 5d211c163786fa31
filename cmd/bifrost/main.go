package main

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/google/shlex"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"

	"github.com/t7a/bifrost/cache"
	"github.com/t7a/bifrost/catalog"
	"github.com/t7a/bifrost/filter"
	"github.com/t7a/bifrost/hook"
	"github.com/t7a/bifrost/store"
	"github.com/t7a/bifrost/vcsadapter"
	"github.com/t7a/bifrost/verify"
)

func init() {
	log.SetReportCaller(true)
	formatter := &log.TextFormatter{
		CallerPrettyfier: caller(),
		FieldMap: log.FieldMap{
			log.FieldKeyFile: "caller",
		},
	}
	formatter.TimestampFormat = "15:04:05.999999999"
	log.SetFormatter(formatter)

	switch os.Getenv("GITBIFROST_VERBOSITY") {
	case "Debug":
		log.SetLevel(log.DebugLevel)
	case "Loud":
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}
}

// caller tags every log line with file:line and goroutine id so
// interleaved store sessions in pre-push/verify stay legible.
func caller() func(*runtime.Frame) (function string, file string) {
	return func(f *runtime.Frame) (function string, file string) {
		p, _ := os.Getwd()
		return "", fmt.Sprintf("%s:%d gid %d", strings.TrimPrefix(f.File, p), f.Line, GetGID())
	}
}

// GetGID returns the goroutine ID of its calling function, for logging
// purposes, by parsing the header of a runtime.Stack dump.
func GetGID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	b = b[:bytes.IndexByte(b, ' ')]
	n, _ := strconv.ParseUint(string(b), 10, 64)
	return n
}

func main() {
	os.Exit(run())
}

// run adapts Run to the plain func() int shape cmdtest.InProcessProgram
// expects.
func run() int {
	rc, msg := Run()
	if len(msg) > 0 {
		fmt.Fprintln(os.Stderr, msg)
	}
	return rc
}

const usage = `bifrost

Usage:
  bifrost hook-pre-push <remote_name> <remote_url>
  bifrost hook-pre-commit
  bifrost filter-clean <path>
  bifrost filter-smudge <path>
  bifrost verify [--username=<user>] [--password=<pass>] [--verbose] [--report=<path>] <store-uri>
  bifrost help
  bifrost clone <vcs-clone-args>...
  bifrost init

Options:
  -h --help              Show this screen.
  --version              Show version.
  --username=<user>      Store username.
  --password=<pass>      Store password.
  --verbose              Report every checked entry, not only bad ones.
  --report=<path>        Write a msgpack report of bad entries to path.
`

type opts struct {
	HookPrePush   bool `docopt:"hook-pre-push"`
	HookPreCommit bool `docopt:"hook-pre-commit"`
	FilterClean   bool `docopt:"filter-clean"`
	FilterSmudge  bool `docopt:"filter-smudge"`
	Verify        bool
	Help          bool
	Clone         bool
	Init          bool

	RemoteName    string `docopt:"<remote_name>"`
	RemoteURL     string `docopt:"<remote_url>"`
	Path          string `docopt:"<path>"`
	StoreURI      string `docopt:"<store-uri>"`
	VCSCloneArgs  []string `docopt:"<vcs-clone-args>"`
	Username      string `docopt:"--username"`
	Password      string `docopt:"--password"`
	Verbose       bool   `docopt:"--verbose"`
	Report        string `docopt:"--report"`
}

// Run parses arguments and dispatches to the requested subcommand. It is
// the top-level entrypoint: defer Halt converts any panic reached during
// parsing or dispatch (a bad URL, an unreachable invariant deep in a
// package this command calls) into a clean process exit instead of a raw
// stack trace.
func Run() (rc int, msg string) {
	defer Halt(&rc, &msg)

	parser := &docopt.Parser{OptionsFirst: false}
	o, err := parser.ParseArgs(usage, os.Args[1:], "0.1")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 22, ""
	}
	var op opts
	Ck(o.Bind(&op))

	switch {
	case op.HookPrePush:
		return cmdHookPrePush(op.RemoteName, op.RemoteURL), ""
	case op.HookPreCommit:
		return cmdHookPreCommit(), ""
	case op.FilterClean:
		return cmdFilterClean(op.Path), ""
	case op.FilterSmudge:
		return cmdFilterSmudge(op.Path), ""
	case op.Verify:
		return cmdVerify(op.StoreURI, op.Username, op.Password, op.Verbose, op.Report), ""
	case op.Help:
		fmt.Print(usage)
		return 0, ""
	case op.Clone:
		return cmdClone(op.VCSCloneArgs), ""
	case op.Init:
		return cmdInit(), ""
	}
	fmt.Fprint(os.Stderr, usage)
	return 1, ""
}

func repoDir() string {
	dir, err := os.Getwd()
	Assert(err == nil, "can't get current directory")
	return dir
}

func adapterAndCache() (*vcsadapter.Adapter, *cache.Cache, error) {
	a := vcsadapter.New(repoDir())
	gitDir, err := a.GitDir()
	if err != nil {
		return nil, nil, err
	}
	return a, cache.ForRepo(gitDir), nil
}

func loadCatalog(a *vcsadapter.Adapter, c *cache.Cache) ([]catalog.Record, error) {
	return catalog.Load(a, c.Dir)
}

func cmdFilterClean(path string) int {
	_, c, err := adapterAndCache()
	if err != nil {
		log.Error(err)
		return 42
	}
	if err := c.EnsureDir(); err != nil {
		log.Error(err)
		return 42
	}
	if err := filter.Clean(c, path, os.Stdin, os.Stdout); err != nil {
		log.Error(err)
		return 42
	}
	return 0
}

func cmdFilterSmudge(path string) int {
	a, c, err := adapterAndCache()
	if err != nil {
		log.Error(err)
		return 42
	}
	records, err := loadCatalog(a, c)
	if err != nil {
		log.Error(err)
		return 42
	}
	registry := store.NewRegistry()
	if err := filter.Smudge(records, registry, c, path, os.Stdin, os.Stdout); err != nil {
		log.Error(err)
		return 42
	}
	return 0
}

func cmdHookPreCommit() int {
	a, _, err := adapterAndCache()
	if err != nil {
		log.Error(err)
		return 42
	}
	total := 0
	result, err := hook.PreCommit(a, catalog.PrimaryConfigFile, func(done, t int) {
		total = t
		fmt.Fprintf(os.Stderr, "\rchecking staged files: %d/%d", done, t)
	})
	if total > 0 {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		log.Error(err)
		return 42
	}
	if !hook.Report(os.Stderr, result) {
		return 1
	}
	return 0
}

func cmdHookPrePush(remoteName, remoteURL string) int {
	a, c, err := adapterAndCache()
	if err != nil {
		log.Error(err)
		return 42
	}
	records, err := loadCatalog(a, c)
	if err != nil {
		log.Error(err)
		return 42
	}
	registry := store.NewRegistry()

	pushRecords, err := readPushRecords(os.Stdin)
	if err != nil {
		log.Error(err)
		return 42
	}

	if err := hook.PrePush(a, c, registry, records, remoteName, remoteURL, pushRecords); err != nil {
		log.Error(err)
		return 1
	}
	return 0
}

func readPushRecords(r *os.File) ([]hook.PushRecord, error) {
	var out []hook.PushRecord
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("malformed pre-push input line: %q", line)
		}
		out = append(out, hook.PushRecord{
			LocalRef: fields[0], LocalSHA: fields[1],
			RemoteRef: fields[2], RemoteSHA: fields[3],
		})
	}
	return out, scanner.Err()
}

func cmdVerify(storeURI, username, password string, verbose bool, report string) int {
	a := vcsadapter.New(repoDir())
	u, err := url.Parse(storeURI)
	if err != nil {
		log.Error(err)
		return -1
	}
	registry := store.NewRegistry()
	creds := store.Credentials{Username: username, Password: password}

	result, err := verify.Run(a, registry, u, creds, verbose, os.Stdout)
	if err != nil {
		log.Error(err)
		return -1
	}

	if report != "" {
		f, err := os.Create(report)
		if err != nil {
			log.Error(err)
			return -1
		}
		defer f.Close()
		if err := verify.WriteReport(f, result); err != nil {
			log.Error(err)
			return -1
		}
	}

	return result.BadFiles
}

// cmdClone passes its arguments, after any from GITBIFROST_CLONE_ARGS,
// through to the VCS's own clone; cmdInit only logs. Installing hooks and
// filter entries into a VCS repository is left to an external
// collaborator, not implemented here.
func cmdClone(userArgs []string) int {
	args := append(cloneArgsFromEnv(), userArgs...)
	log.WithField("args", args).Info("clone: delegating to vcs binary (hook/filter installation not implemented here)")
	cmd := exec.Command("git", append([]string{"clone"}, args...)...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		log.Error(err)
		return 1
	}
	return 0
}

func cloneArgsFromEnv() []string {
	raw := os.Getenv("GITBIFROST_CLONE_ARGS")
	if raw == "" {
		return nil
	}
	parts, err := shlex.Split(raw)
	if err != nil {
		log.WithError(err).Warn("clone: ignoring malformed GITBIFROST_CLONE_ARGS")
		return nil
	}
	return parts
}

func cmdInit() int {
	log.Info("init: installing filters and hooks is an external collaborator; run the vcs's own hook installer")
	return 0
}
