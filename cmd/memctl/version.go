package main

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/nativemem/internal/pagemap"
	"github.com/joshuapare/nativemem/internal/sizes"
	"github.com/joshuapare/nativemem/memory"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// VersionInfo describes the build and the allocation environment it runs in.
type VersionInfo struct {
	Version        string   `json:"version"`
	Commit         string   `json:"commit"`
	Built          string   `json:"built"`
	GoVersion      string   `json:"go_version"`
	Platform       string   `json:"platform"`
	DefaultBackend string   `json:"default_backend"`
	Backends       []string `json:"backends"`
	WordSize       int      `json:"word_size"`
	PageSize       int      `json:"page_size"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and allocator information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func currentVersion() VersionInfo {
	return VersionInfo{
		Version:        version,
		Commit:         commit,
		Built:          date,
		GoVersion:      runtime.Version(),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		DefaultBackend: backendName(memory.CurrentAllocator()),
		Backends:       backends,
		WordSize:       sizes.WordSize,
		PageSize:       pagemap.PageSize(),
	}
}

// backendName reports the package of a's concrete type, e.g. "goheap".
func backendName(a memory.Allocator) string {
	t := reflect.TypeOf(a)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	path := t.PkgPath()
	return path[strings.LastIndex(path, "/")+1:]
}

func runVersion() error {
	info := currentVersion()
	if jsonOut {
		return printJSON(info)
	}
	fmt.Printf("memctl %s\n", info.Version)
	fmt.Printf("  commit: %s\n", info.Commit)
	fmt.Printf("  built: %s (%s, %s)\n", info.Built, info.GoVersion, info.Platform)
	fmt.Printf("  default backend: %s\n", info.DefaultBackend)
	fmt.Printf("  backends: %s\n", strings.Join(info.Backends, ", "))
	fmt.Printf("  word size: %d, page size: %d\n", info.WordSize, info.PageSize)
	return nil
}
