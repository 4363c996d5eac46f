package cli

import (
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		dirFlag string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index as a simple repository",
		Long: `Serve a mirrored index over HTTP as a PEP 503 / PEP 691 simple repository.

Point pip at it with:
  pip install --index-url http://<host>:<port>/ <package>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			dir, err := indexPath(dirFlag)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "index path %q", dirFlag)
			}
			srv, err := server.New(dir, logger)
			if err != nil {
				return err
			}

			addr := net.JoinHostPort(host, strconv.Itoa(port))
			printKeyValue("Index", dir)
			printKeyValue("Listening", StyleLink.Render("http://"+addr+"/"))
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVarP(&dirFlag, "index-path", "i", "", "index directory (default: working directory)")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "address to bind")
	cmd.Flags().IntVarP(&port, "port", "p", defaultPort, "port to listen on")

	return cmd
}
