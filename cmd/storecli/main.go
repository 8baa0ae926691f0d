// Command storecli is an administrative tool for inspecting and
// mutating a Fountain Store database.
//
// Usage:
//
//	storecli -db=<path> <command> [args]
//
// Commands:
//
//	put <collection> <json>     Put a document (json must include "id")
//	get <collection> <id>       Get a document by id
//	delete <collection> <id>    Delete a document by id
//	scan <collection> [prefix]  Scan documents by id prefix
//	backup [note]               Create a backup
//	backups                     List backups
//	restore <id>                Restore a backup
//	compact                     Run one compaction tick
//	status                      Print compaction status and metrics
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	fountainstore "github.com/Fountain-Coach/Fountain-Store"
)

var (
	dbPath = flag.String("db", "", "Path to the database (required)")
	limit  = flag.Int("limit", 0, "Limit number of entries (0 = default)")
)

func main() {
	flag.Parse()

	args := flag.Args()
	if *dbPath == "" || len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	rest := args[1:]

	var err error
	switch command {
	case "put":
		err = cmdPut(rest)
	case "get":
		err = cmdGet(rest)
	case "delete":
		err = cmdDelete(rest)
	case "scan":
		err = cmdScan(rest)
	case "backup":
		err = cmdBackup(rest)
	case "backups":
		err = cmdBackups()
	case "restore":
		err = cmdRestore(rest)
	case "compact":
		err = cmdCompact()
	case "status":
		err = cmdStatus()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "storecli -db=<path> <command> [args]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  put <collection> <json>     Put a document (json must include \"id\")")
	fmt.Fprintln(os.Stderr, "  get <collection> <id>       Get a document by id")
	fmt.Fprintln(os.Stderr, "  delete <collection> <id>    Delete a document by id")
	fmt.Fprintln(os.Stderr, "  scan <collection> [prefix]  Scan documents by id prefix")
	fmt.Fprintln(os.Stderr, "  backup [note]               Create a backup")
	fmt.Fprintln(os.Stderr, "  backups                     List backups")
	fmt.Fprintln(os.Stderr, "  restore <id>                Restore a backup")
	fmt.Fprintln(os.Stderr, "  compact                     Run one compaction tick")
	fmt.Fprintln(os.Stderr, "  status                      Print compaction status and metrics")
	flag.PrintDefaults()
}

func openStore() (*fountainstore.Store, error) {
	return fountainstore.Open(fountainstore.DefaultOptions(*dbPath))
}

func cmdPut(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: storecli -db=<path> put <collection> <json>")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var doc fountainstore.Document
	if err := json.Unmarshal([]byte(args[1]), &doc); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}

	coll, err := fountainstore.OpenDocumentCollection(s, args[0])
	if err != nil {
		return err
	}

	seq, err := coll.Put(doc)
	if err != nil {
		return err
	}
	fmt.Printf("OK seq=%d\n", seq)
	return nil
}

func cmdGet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: storecli -db=<path> get <collection> <id>")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	coll, err := fountainstore.OpenDocumentCollection(s, args[0])
	if err != nil {
		return err
	}

	doc, ok, err := coll.Get(args[1], nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("not found: %s", args[1])
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdDelete(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: storecli -db=<path> delete <collection> <id>")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	coll, err := fountainstore.OpenDocumentCollection(s, args[0])
	if err != nil {
		return err
	}

	if _, err := coll.Delete(args[1]); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func cmdScan(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: storecli -db=<path> scan <collection> [prefix]")
	}

	prefix := ""
	if len(args) > 1 {
		prefix = args[1]
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	coll, err := fountainstore.OpenDocumentCollection(s, args[0])
	if err != nil {
		return err
	}

	docs, err := coll.Scan(prefix, *limit, nil)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		out, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	fmt.Printf("\n(%d entries scanned)\n", len(docs))
	return nil
}

func cmdBackup(args []string) error {
	note := ""
	if len(args) > 0 {
		note = args[0]
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ref, err := s.CreateBackup(note)
	if err != nil {
		return err
	}
	fmt.Printf("backup %s created at %s (%d bytes)\n", ref.ID, ref.CreatedAt, ref.SizeBytes)
	return nil
}

func cmdBackups() error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	refs, err := s.ListBackups()
	if err != nil {
		return err
	}
	for _, ref := range refs {
		fmt.Printf("%s  %s  %d bytes  %s\n", ref.ID, ref.CreatedAt, ref.SizeBytes, ref.Note)
	}
	return nil
}

func cmdRestore(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: storecli -db=<path> restore <id>")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RestoreBackup(args[0]); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func cmdCompact() error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Compact(); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func cmdStatus() error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	status := s.CompactionStatus()
	fmt.Printf("compaction: running=%v pendingTables=%d debtBytes=%d\n",
		status.Running, status.PendingTables, status.DebtBytes)
	for _, lvl := range status.Levels {
		fmt.Printf("  level=%d tables=%d bytes=%d\n", lvl.Level, lvl.Tables, lvl.SizeBytes)
	}

	m := s.Metrics()
	fmt.Printf("metrics: puts=%d deletes=%d batches=%d flushes=%d compactionTicks=%d walBytesWritten=%d cacheHits=%d cacheMisses=%d\n",
		m.Puts, m.Deletes, m.Batches, m.Flushes, m.CompactionTicks, m.WALBytesWritten, m.CacheHits, m.CacheMisses)
	return nil
}
