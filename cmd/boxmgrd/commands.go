package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/axondata/go-boxmgr"
)

// ----- config -----

type ConfigCmd struct {
	Import   ConfigImport   `cmd:"" help:"Import a core configuration file"`
	List     ConfigList     `cmd:"" aliases:"ls" help:"List stored configurations"`
	Activate ConfigActivate `cmd:"" help:"Mark a configuration as the one to run"`
}

type ConfigImport struct {
	File     string `arg:"" type:"existingfile" help:"Configuration JSON file"`
	Tag      string `optional:"" help:"Name of the configuration; defaults to the file name"`
	Activate bool   `optional:"" help:"Make the imported configuration active"`
}

func (c ConfigImport) Run(ctx context.Context, globals *Globals) error {
	doc, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	tag := c.Tag
	if tag == "" {
		tag = strings.TrimSuffix(filepath.Base(c.File), filepath.Ext(c.File))
	}

	store, err := globals.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.ImportConfig(ctx, tag, doc, c.Activate)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

type ConfigList struct{}

func (ConfigList) Run(ctx context.Context, globals *Globals) error {
	store, err := globals.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.ListConfigs(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTAG\tACTIVE")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%t\n", row.ID, row.Tag, row.Active)
	}
	return w.Flush()
}

type ConfigActivate struct {
	IDOrTag string `arg:"" name:"id-or-tag" help:"Id or tag of the configuration"`
}

func (c ConfigActivate) Run(ctx context.Context, globals *Globals) error {
	store, err := globals.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SetActive(ctx, c.IDOrTag)
}

// ----- core -----

type CoreCmd struct {
	Set    CoreSet    `cmd:"" help:"Point the supervisor at a core binary"`
	Upload CoreUpload `cmd:"" help:"Copy a core binary into the data dir after checking it"`
}

type CoreSet struct {
	Path string `arg:"" type:"existingfile" help:"Core binary"`
}

func (c CoreSet) Run(ctx context.Context, globals *Globals) error {
	path, err := filepath.Abs(c.Path)
	if err != nil {
		return err
	}
	info, err := boxmgr.QueryCore(ctx, path)
	if err != nil {
		return err
	}
	if info.Version == "" {
		return fmt.Errorf("%s: %w", path, boxmgr.ErrInvalidCore)
	}

	store, err := globals.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetCorePath(ctx, path); err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", path, info.Version)
	return nil
}

type CoreUpload struct {
	File string `arg:"" type:"existingfile" help:"Core binary to upload"`
	Name string `optional:"" help:"File name inside the data dir" default:"${core_name}"`
	Set  bool   `optional:"" default:"true" negatable:"" help:"Point the supervisor at the uploaded core"`
}

func (c CoreUpload) Run(ctx context.Context, globals *Globals) error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	path, err := boxmgr.UploadCore(ctx, globals.DataDir, c.Name, f)
	if err != nil {
		return err
	}
	if c.Set {
		store, err := globals.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if err := store.SetCorePath(ctx, path); err != nil {
			return err
		}
	}
	fmt.Println(path)
	return nil
}

// ----- script -----

type ScriptCmd struct {
	Set   ScriptSet   `cmd:"" help:"Attach a script to a lifecycle point"`
	Clear ScriptClear `cmd:"" help:"Detach the script holding a lifecycle point"`
	List  ScriptList  `cmd:"" aliases:"ls" help:"List stored scripts"`
}

type ScriptSet struct {
	RunType string `arg:"" name:"run-type" enum:"before-start,after-start,before-close,after-close,disabled" help:"Lifecycle point"`
	File    string `arg:"" type:"existingfile" help:"Script file"`
	Tag     string `optional:"" help:"Name of the script; defaults to the file name"`
}

func (c ScriptSet) Run(ctx context.Context, globals *Globals) error {
	rt, err := boxmgr.ParseRunType(c.RunType)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	tag := c.Tag
	if tag == "" {
		tag = filepath.Base(c.File)
	}

	store, err := globals.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SetScript(ctx, tag, string(content), rt)
}

type ScriptClear struct {
	RunType string `arg:"" name:"run-type" enum:"before-start,after-start,before-close,after-close" help:"Lifecycle point"`
}

func (c ScriptClear) Run(ctx context.Context, globals *Globals) error {
	rt, err := boxmgr.ParseRunType(c.RunType)
	if err != nil {
		return err
	}
	store, err := globals.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return store.ClearScript(ctx, rt)
}

type ScriptList struct{}

func (ScriptList) Run(ctx context.Context, globals *Globals) error {
	store, err := globals.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.ListScripts(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTAG\tRUN TYPE")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", row.ID, row.Tag, boxmgr.RunType(row.RunType))
	}
	return w.Flush()
}

// ----- auto-start -----

type AutoStart struct {
	State string `arg:"" enum:"on,off" help:"on or off"`
}

func (c AutoStart) Run(ctx context.Context, globals *Globals) error {
	store, err := globals.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SetAutoStart(ctx, c.State == "on")
}

// ----- kv -----

type KVCmd struct {
	Get KVGet `cmd:"" help:"Print the JSON value stored under a key"`
	Set KVSet `cmd:"" help:"Store a JSON value under a key"`
}

type KVGet struct {
	Key string `arg:""`
}

func (c KVGet) Run(ctx context.Context, globals *Globals) error {
	store, err := globals.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	raw, ok, err := store.GetRaw(ctx, c.Key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key %q not set", c.Key)
	}
	fmt.Println(string(raw))
	return nil
}

type KVSet struct {
	Key   string `arg:""`
	Value string `arg:"" help:"JSON value; bare words are stored as strings"`
}

func (c KVSet) Run(ctx context.Context, globals *Globals) error {
	raw := json.RawMessage(c.Value)
	if !json.Valid(raw) {
		quoted, err := json.Marshal(c.Value)
		if err != nil {
			return err
		}
		raw = quoted
	}

	store, err := globals.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SetRaw(ctx, c.Key, raw)
}
