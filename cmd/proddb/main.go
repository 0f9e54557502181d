// Command proddb manages a single-file product database.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/LuCh-Ans/ProductDB/internal/storage"
)

type config struct {
	dbPath  string
	asJSON  bool
	verbose bool
	sync    bool
}

const usage = `usage: proddb [flags] <command> [args]

commands:
  create                         create an empty database (replaces an existing file)
  add    -id N -name S -price F [-brand N] [-category N] [-volume S] [-desc S]
  update -id N -name S -price F [-brand N] [-category N] [-volume S] [-desc S]
  get <id>                       show one record
  delete <id>                    delete one record
  list                           show every record
  find [-fold] <field> <value>   exact match (case-insensitive scan with -fold)
  delete-by <field> <value>      delete every matching record
  clear                          delete every record
  backup <dest>                  copy the database file
  restore <src>                  replace the database file with a backup
  export <path>                  write records as CSV (extension forced to .csv)
  drop                           delete the database file
  dump [-head N]                 print header and raw slots

fields: id, name, price, brandId, categoryId, volumeWeight, description

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var cfg config
	fs := flag.NewFlagSet("proddb", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.dbPath, "db", "products.db", "database file")
	fs.BoolVar(&cfg.asJSON, "json", false, "print records as JSON")
	fs.BoolVar(&cfg.verbose, "v", false, "verbose logging")
	fs.BoolVar(&cfg.sync, "sync", false, "fsync after every change")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return int(storage.CodeInvalidFormat)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return int(storage.CodeInvalidFormat)
	}

	logger, err := newLogger(cfg.verbose)
	if err != nil {
		fmt.Fprintf(stderr, "failed to build logger: %v\n", err)
		return int(storage.CodeInvalidFormat)
	}
	defer logger.Sync()

	engine := storage.NewEngine(
		storage.WithLogger(logger),
		storage.WithSync(cfg.sync),
	)
	defer engine.Close()

	c := &cli{cfg: cfg, engine: engine, logger: logger, stdout: stdout, stderr: stderr}
	err = c.dispatch(fs.Arg(0), fs.Args()[1:])
	if err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(stderr, "%v\n", err)
			return int(storage.CodeInvalidFormat)
		}
		code := storage.Code(err)
		fmt.Fprintf(stderr, "error: %s (%v)\n", code, err)
		return int(code)
	}
	return int(storage.Success)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

type usageError struct{ msg string }

func (u usageError) Error() string { return u.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

type cli struct {
	cfg    config
	engine *storage.Engine
	logger *zap.Logger
	stdout io.Writer
	stderr io.Writer
}

func (c *cli) dispatch(cmd string, args []string) error {
	switch cmd {
	case "create":
		if err := c.engine.Create(c.cfg.dbPath); err != nil {
			return err
		}
		return c.status("created")
	case "restore":
		if len(args) != 1 {
			return usagef("restore needs a backup path")
		}
		// Open may fail on a missing or damaged file; restore still knows the path.
		c.openBestEffort("restore")
		if err := c.engine.RestoreFromBackup(args[0]); err != nil {
			return err
		}
		return c.status("restored")
	case "drop":
		c.openBestEffort("drop")
		if err := c.engine.DeleteDatabaseFile(); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "deleted %s\n", c.cfg.dbPath)
		return nil
	case "dump":
		dumpFlags := flag.NewFlagSet("dump", flag.ContinueOnError)
		dumpFlags.SetOutput(c.stderr)
		head := dumpFlags.Int("head", 0, "number of slots to print, 0 for all")
		if err := dumpFlags.Parse(args); err != nil {
			return usagef("dump: %v", err)
		}
		return storage.DumpFile(c.stdout, c.cfg.dbPath, *head)
	}

	if err := c.engine.Open(c.cfg.dbPath); err != nil {
		return err
	}

	switch cmd {
	case "add", "update":
		p, err := parseProduct(cmd, args, c.stderr)
		if err != nil {
			return err
		}
		if cmd == "add" {
			err = c.engine.AddRecord(p)
		} else {
			err = c.engine.UpdateRecord(p)
		}
		if err != nil {
			return err
		}
		return c.status(cmd + " ok")
	case "get":
		id, err := parseID(args)
		if err != nil {
			return err
		}
		p, err := c.engine.FindRecordByID(id)
		if err != nil {
			return err
		}
		return c.printRecords([]storage.Product{p})
	case "delete":
		id, err := parseID(args)
		if err != nil {
			return err
		}
		if err := c.engine.DeleteRecordByID(id); err != nil {
			return err
		}
		return c.status("deleted")
	case "list":
		records, err := c.engine.AllRecords()
		if err != nil {
			return err
		}
		return c.printRecords(records)
	case "find":
		findFlags := flag.NewFlagSet("find", flag.ContinueOnError)
		findFlags.SetOutput(c.stderr)
		fold := findFlags.Bool("fold", false, "case-insensitive text match")
		if err := findFlags.Parse(args); err != nil {
			return usagef("find: %v", err)
		}
		field, value, err := parseFieldValue(findFlags.Args())
		if err != nil {
			return err
		}
		var records []storage.Product
		if *fold {
			records, err = c.engine.SearchText(field, fmt.Sprint(value))
		} else {
			records, err = c.engine.FindRecordsByField(field, value)
		}
		if err != nil {
			return err
		}
		if err := c.printRecords(records); err != nil {
			return err
		}
		fmt.Fprintf(c.stderr, "found %d record(s)\n", len(records))
		return nil
	case "delete-by":
		field, value, err := parseFieldValue(args)
		if err != nil {
			return err
		}
		n, err := c.engine.DeleteRecordsByField(field, value)
		if err != nil {
			return err
		}
		return c.status(fmt.Sprintf("deleted %d record(s)", n))
	case "clear":
		if err := c.engine.Clear(); err != nil {
			return err
		}
		return c.status("cleared")
	case "backup":
		if len(args) != 1 {
			return usagef("backup needs a destination path")
		}
		if err := c.engine.Backup(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "backup written to %s\n", args[0])
		return nil
	case "export":
		if len(args) != 1 {
			return usagef("export needs a destination path")
		}
		path, err := c.engine.ExportCSV(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "exported to %s\n", path)
		return nil
	default:
		return usagef("unknown command %q", cmd)
	}
}

// openBestEffort opens the database for commands that also work on a missing
// or unreadable file. The failure is only logged.
func (c *cli) openBestEffort(cmd string) {
	if err := c.engine.Open(c.cfg.dbPath); err != nil {
		c.logger.Debug("database not opened before "+cmd,
			zap.String("path", c.cfg.dbPath),
			zap.Error(err))
	}
}

func (c *cli) status(msg string) error {
	fmt.Fprintf(c.stdout, "%s | records: %d\n", msg, c.engine.RecordCount())
	return nil
}

func (c *cli) printRecords(records []storage.Product) error {
	if c.cfg.asJSON {
		if records == nil {
			records = []storage.Product{}
		}
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tBRAND\tCATEGORY\tVOLUME/WEIGHT\tDESCRIPTION")
	for _, p := range records {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%d\t%d\t%s\t%s\n",
			p.ID, p.Name, p.Price, p.BrandID, p.CategoryID, p.VolumeWeight, p.Description)
	}
	return tw.Flush()
}

func parseProduct(cmd string, args []string, stderr io.Writer) (storage.Product, error) {
	var p storage.Product
	pf := flag.NewFlagSet(cmd, flag.ContinueOnError)
	pf.SetOutput(stderr)
	pf.Var((*int32Value)(&p.ID), "id", "product id (> 0)")
	pf.StringVar(&p.Name, "name", "", "product name")
	pf.Float64Var(&p.Price, "price", 0, "price (> 0)")
	pf.Var((*int32Value)(&p.BrandID), "brand", "brand id")
	pf.Var((*int32Value)(&p.CategoryID), "category", "category id")
	pf.StringVar(&p.VolumeWeight, "volume", "", "volume or weight")
	pf.StringVar(&p.Description, "desc", "", "description")
	if err := pf.Parse(args); err != nil {
		return storage.Product{}, usagef("%s: %v", cmd, err)
	}
	return p, nil
}

// int32Value is a flag.Value that rejects numbers outside the int32 range.
type int32Value int32

func (v *int32Value) Set(s string) error {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return err
	}
	*v = int32Value(n)
	return nil
}

func (v *int32Value) String() string {
	if v == nil {
		return "0"
	}
	return strconv.FormatInt(int64(*v), 10)
}

func parseID(args []string) (int32, error) {
	if len(args) != 1 {
		return 0, usagef("expected exactly one id")
	}
	id, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return 0, usagef("invalid id %q", args[0])
	}
	return int32(id), nil
}

func parseFieldValue(args []string) (storage.Field, any, error) {
	if len(args) != 2 {
		return 0, nil, usagef("expected <field> <value>")
	}
	field, err := storage.ParseField(args[0])
	if err != nil {
		return 0, nil, usagef("%v", err)
	}
	value, err := field.ParseValue(args[1])
	if err != nil {
		return 0, nil, usagef("%v", err)
	}
	return field, value, nil
}
