package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/reactq/internal/cli/output"
	"github.com/yndnr/reactq/internal/infra/buildinfo"
)

// VersionCommand prints build and checkpoint format versions.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build and checkpoint format versions",
		Action: func(c *cli.Context) error {
			format, err := output.ParseFormat(c.String("output"))
			if err != nil {
				return err
			}
			return output.NewFormatter(format).Format(c.App.Writer, buildinfo.Get())
		},
	}
}
