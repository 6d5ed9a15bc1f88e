package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrsteele09/go-auth-client/gateway"
	"github.com/jrsteele09/go-auth-client/routegate"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newRequestCmd(app *App) *cobra.Command {
	var data string
	var fields, files []string
	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated request through the gateway",
		Long: `Send a request to the backend API with the session's credential attached.
A JSON body is given with --data; --field and --file send multipart form data instead.

Examples:
  authclient request GET /auth/me
  authclient request POST /sites --data '{"name":"North"}'
  authclient request POST /uploads --file report=./report.pdf
`,
		Args: cobra.ExactArgs(2),
		RunE: app.run(func(cmd *cobra.Command, args []string) error {
			body, err := requestBody(data, fields, files)
			if err != nil {
				return err
			}
			resp := app.console.Gateway.Do(cmd.Context(), args[1], gateway.Options{
				Method: strings.ToUpper(args[0]),
				Body:   body,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", resp.Status, resp.StatusText)
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(resp.Body)))
			if !resp.OK() {
				return errors.Errorf("request failed: %s", resp.Envelope().Error)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON request body")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "multipart form field name=value")
	cmd.Flags().StringArrayVar(&files, "file", nil, "multipart file field=path")
	return cmd
}

func requestBody(data string, fields, files []string) (any, error) {
	if len(fields) == 0 && len(files) == 0 {
		if data == "" {
			return nil, nil
		}
		if !json.Valid([]byte(data)) {
			return nil, errors.New("--data is not valid JSON")
		}
		return json.RawMessage(data), nil
	}
	if data != "" {
		return nil, errors.New("--data cannot be combined with --field or --file")
	}

	formFields := make(map[string]string, len(fields))
	for _, f := range fields {
		name, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, errors.Errorf("field %q is not name=value", f)
		}
		formFields[name] = value
	}
	var formFiles []gateway.File
	for _, f := range files {
		name, path, ok := strings.Cut(f, "=")
		if !ok {
			return nil, errors.Errorf("file %q is not field=path", f)
		}
		file, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		defer file.Close()
		formFiles = append(formFiles, gateway.File{Field: name, Name: filepath.Base(path), Content: file})
	}
	return gateway.NewMultipart(formFields, formFiles...)
}

func newRouteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "route PATH",
		Short: "Show the access decision for a route",
		Args:  cobra.ExactArgs(1),
		RunE: app.run(func(cmd *cobra.Command, args []string) error {
			d := app.console.Visit(args[0])
			if d.Action == routegate.ActionRedirect {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", d.Action, args[0], d.Target)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", d.Action, args[0])
			return nil
		}),
	}
}
