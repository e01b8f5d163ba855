package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/andreyvit/objio"
	"github.com/andreyvit/objio/engine"
	"github.com/urfave/cli/v3"
)

var errUsage = errors.New("wrong number of arguments")

func openEngine(cmd *cli.Command) (*engine.KV, *slog.Logger, error) {
	path := cmd.String("db")
	if path == "" {
		return nil, nil, errors.New("--db or OBJTOOL_DB is required")
	}
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	kv, err := engine.Open(engine.OpenArgs{
		Path:    path,
		Logger:  logger,
		Verbose: cmd.Bool("verbose"),
	})
	if err != nil {
		return nil, nil, err
	}
	return kv, logger, nil
}

// withObject opens the object named by the first argument and runs f.
func withObject(cmd *cli.Command, minArgs int, f func(o *objio.Object) error) error {
	if cmd.Args().Len() < minArgs {
		return fmt.Errorf("%w: usage: %s %s", errUsage, cmd.Name, cmd.ArgsUsage)
	}
	id, err := objio.ParseObjectID(cmd.Args().First())
	if err != nil {
		return err
	}
	kv, logger, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer kv.Close()

	c, err := objio.New(objio.Options{
		Engine:  kv,
		Logger:  logger,
		Verbose: cmd.Bool("verbose"),
	})
	if err != nil {
		return err
	}
	o := c.Object(id)
	if err := o.Open(); err != nil {
		return err
	}
	defer o.Close()
	return f(o)
}

func parseClass(s string) (objio.ObjectClass, error) {
	for _, c := range []objio.ObjectClass{objio.ClassSingle, objio.ClassReplicated, objio.ClassStriped} {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown object class %q", s)
}

func genOID(ctx context.Context, cmd *cli.Command) error {
	class, err := parseClass(cmd.String("class"))
	if err != nil {
		return err
	}
	id, err := objio.RandomObjectID().Encode(class, 0)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func kindAndRec(cmd *cli.Command, def uint32) (objio.Kind, uint32) {
	kind, rec := objio.KindSingle, def
	if cmd.Bool("array") {
		kind, rec = objio.KindArray, 1
	}
	if r := cmd.Uint("rec"); r != 0 {
		rec = uint32(r)
	}
	return kind, rec
}

func putValue(ctx context.Context, cmd *cli.Command) error {
	return withObject(cmd, 4, func(o *objio.Object) error {
		dkey, akey, value := cmd.Args().Get(1), cmd.Args().Get(2), []byte(cmd.Args().Get(3))
		if cmd.Bool("hex") {
			var err error
			value, err = hex.DecodeString(string(value))
			if err != nil {
				return err
			}
		}
		kind, rec := kindAndRec(cmd, uint32(len(value)))

		buf := o.Client().Buffer(len(value))
		if _, err := buf.Write(value); err != nil {
			buf.Release()
			return err
		}
		e, err := objio.NewUpdateEntry(akey, kind, rec, uint64(cmd.Uint("offset")), buf)
		if err != nil {
			buf.Release()
			return err
		}
		d, err := o.NewUpdateDesc(dkey, e)
		if err != nil {
			buf.Release()
			return err
		}
		defer d.Release()
		return o.Update(d)
	})
}

func getValue(ctx context.Context, cmd *cli.Command) error {
	return withObject(cmd, 3, func(o *objio.Object) error {
		dkey, akey := cmd.Args().Get(1), cmd.Args().Get(2)
		capacity := uint32(cmd.Uint("cap"))
		kind, rec := kindAndRec(cmd, capacity)

		e, err := objio.NewFetchEntry(akey, kind, rec, uint64(cmd.Uint("offset")), capacity)
		if err != nil {
			return err
		}
		d, err := o.NewFetchDesc(dkey, e)
		if err != nil {
			return err
		}
		defer d.Release()
		if err := o.Fetch(d); err != nil {
			return err
		}
		if e.ActualRecSize() == 0 {
			return fmt.Errorf("%s/%s not found", dkey, akey)
		}
		fmt.Fprintf(os.Stderr, "record size %d, %d bytes\n", e.ActualRecSize(), e.ActualSize())
		if cmd.Bool("hex") {
			fmt.Println(hex.EncodeToString(e.Data().Bytes()))
		} else {
			os.Stdout.Write(e.Data().Bytes())
			fmt.Println()
		}
		return nil
	})
}

func listKeys(ctx context.Context, cmd *cli.Command) error {
	return withObject(cmd, 1, func(o *objio.Object) error {
		opt := objio.KeyDescOptions{PageCapacity: int(cmd.Uint("page"))}
		dkey := cmd.Args().Get(1)
		var kd *objio.KeyDesc
		var err error
		if dkey == "" {
			kd, err = o.NewDkeyDesc(opt)
		} else {
			kd, err = o.NewAkeyDesc(dkey, opt)
		}
		if err != nil {
			return err
		}
		defer kd.Release()

		for !kd.ReachedEnd() {
			kd.ContinueList()
			var keys []string
			if dkey == "" {
				keys, err = o.ListDkeys(kd)
			} else {
				keys, err = o.ListAkeys(kd)
			}
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(k)
			}
		}
		return nil
	})
}

func punch(ctx context.Context, cmd *cli.Command) error {
	return withObject(cmd, 1, func(o *objio.Object) error {
		args := cmd.Args().Slice()
		switch len(args) {
		case 1:
			return o.Punch()
		case 2:
			return o.PunchDkeys(args[1])
		default:
			return o.PunchAkeys(args[1], args[2:]...)
		}
	})
}

func recordSize(ctx context.Context, cmd *cli.Command) error {
	return withObject(cmd, 3, func(o *objio.Object) error {
		size, err := o.RecordSize(cmd.Args().Get(1), cmd.Args().Get(2))
		if err != nil {
			return err
		}
		fmt.Println(size)
		return nil
	})
}

func dump(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("%w: usage: dump OID", errUsage)
	}
	id, err := objio.ParseObjectID(cmd.Args().First())
	if err != nil {
		return err
	}
	kv, _, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer kv.Close()

	flags := engine.DumpKeys
	if cmd.Bool("values") {
		flags = engine.DumpAll
	}
	s, err := kv.Dump(engine.OID{Hi: id.High(), Lo: id.Low()}, flags)
	if err != nil {
		return err
	}
	fmt.Print(s)
	return nil
}
