package command

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/reactq/internal/checkpoint"
	"github.com/yndnr/reactq/internal/checkpoint/framing"
	"github.com/yndnr/reactq/internal/cli/output"
)

// DumpCommand prints the bytes of one item.
func DumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Print the frame payload (or the raw bytes) of one item",
		ArgsUsage: "CATEGORY KEY",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "encoding",
				Aliases: []string{"e"},
				Usage:   "Payload encoding: hex, base64",
				Value:   "hex",
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Dump the whole stored item, header and footer included",
			},
		},
		Action: withSession(dump),
	}
}

// DumpResult is one dumped item.
type DumpResult struct {
	Category   string `json:"category" yaml:"category"`
	Key        string `json:"key" yaml:"key"`
	Serializer string `json:"serializer,omitempty" yaml:"serializer,omitempty"`
	Offset     int64  `json:"offset" yaml:"offset"`
	Length     int64  `json:"length" yaml:"length"`
	Encoding   string `json:"encoding" yaml:"encoding"`
	Data       string `json:"data" yaml:"data"`
}

func dump(c *cli.Context, s *session) error {
	if c.NArg() != 2 {
		return fmt.Errorf("dump: want CATEGORY KEY, got %d arguments", c.NArg())
	}
	category, key := c.Args().Get(0), c.Args().Get(1)

	encode, err := encoder(c.String("encoding"))
	if err != nil {
		return err
	}

	r, err := s.reader()
	if err != nil {
		return err
	}
	defer r.Close()

	ir, ok, err := r.GetItemReader(category, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("item %s/%s not found", category, key)
	}
	defer ir.Close()

	res := DumpResult{Category: category, Key: key, Encoding: c.String("encoding")}
	var data []byte
	if c.Bool("raw") {
		data, err = io.ReadAll(ir)
		if err != nil {
			return err
		}
	} else {
		h, ser, err := checkpoint.ReadHeader(ir, s.policy)
		if err != nil {
			return fmt.Errorf("%s/%s: %s", category, key, errorText(err))
		}
		res.Serializer = h.SerializerName + "/" + h.SerializerVersion.String()

		opts := []framing.ReaderOption{}
		if isStateCategory(category) {
			opts = append(opts, framing.AllowTransitioning())
		}
		fr, err := framing.NewReader(ir, ser, opts...)
		if err != nil {
			return fmt.Errorf("%s/%s: %s", category, key, errorText(err))
		}
		res.Offset, _ = ir.Seek(0, io.SeekCurrent)
		data = make([]byte, fr.Remaining())
		if fr.Framed() {
			if err := fr.ReadBytes(data); err != nil {
				return err
			}
		} else if _, err := io.ReadFull(ir, data); err != nil {
			return err
		}
	}
	res.Length = int64(len(data))

	if s.format == output.FormatTable && res.Encoding == "hex" {
		fmt.Fprintf(s.out, "%s/%s offset=%d length=%d\n", category, key, res.Offset, res.Length)
		_, err := io.WriteString(s.out, hex.Dump(data))
		return err
	}
	res.Data = encode(data)
	return s.emit(res)
}

func encoder(name string) (func([]byte) string, error) {
	switch name {
	case "hex":
		return hex.EncodeToString, nil
	case "base64":
		return base64.StdEncoding.EncodeToString, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q (want hex or base64)", name)
	}
}
