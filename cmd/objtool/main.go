// Command objtool reads and writes objects stored in a bolt-backed engine.
//
//	objtool --db objects.db genoid
//	objtool --db objects.db put 100000001.2a dkey1 akey1 hello
//	objtool --db objects.db get 100000001.2a dkey1 akey1
//	objtool --db objects.db ls 100000001.2a
package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "objtool",
		Usage: "inspect and modify objects in a bolt object store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "path of the bolt database file",
				Sources: cli.EnvVars("OBJTOOL_DB"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log every engine operation",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "genoid",
				Usage:  "print a new random encoded object id",
				Action: genOID,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "class",
						Value: "S1",
						Usage: "object class: S1, RP_2 or SX",
					},
				},
			},
			{
				Name:      "put",
				Usage:     "write a value",
				ArgsUsage: "OID DKEY AKEY VALUE",
				Action:    putValue,
				Flags:     append(valueFlags(), &cli.BoolFlag{Name: "hex", Usage: "VALUE is hex-encoded"}),
			},
			{
				Name:      "get",
				Usage:     "read a value",
				ArgsUsage: "OID DKEY AKEY",
				Action:    getValue,
				Flags: append(valueFlags(),
					&cli.UintFlag{
						Name:  "cap",
						Value: 4096,
						Usage: "maximum number of bytes to read",
					},
					&cli.BoolFlag{Name: "hex", Usage: "print the value as hex"},
				),
			},
			{
				Name:      "ls",
				Usage:     "list dkeys, or the akeys of DKEY",
				ArgsUsage: "OID [DKEY]",
				Action:    listKeys,
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:  "page",
						Value: 128,
						Usage: "keys per page",
					},
				},
			},
			{
				Name:      "punch",
				Usage:     "remove the object, a dkey, or akeys of a dkey",
				ArgsUsage: "OID [DKEY [AKEY...]]",
				Action:    punch,
			},
			{
				Name:      "recsize",
				Usage:     "print the record size of an akey (0 if absent)",
				ArgsUsage: "OID DKEY AKEY",
				Action:    recordSize,
			},
			{
				Name:      "dump",
				Usage:     "print every dkey and akey of an object",
				ArgsUsage: "OID",
				Action:    dump,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "values", Usage: "include value bytes"},
				},
			},
		},
	}
}

func valueFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "array",
			Usage: "treat the akey as an ARRAY of records instead of a SINGLE value",
		},
		&cli.UintFlag{
			Name:  "rec",
			Usage: "record size; defaults to 1 for arrays and the value length for singles",
		},
		&cli.UintFlag{
			Name:  "offset",
			Usage: "byte offset into an ARRAY",
		},
	}
}
