package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/signon/internal/security/secretbox"
)

type client struct {
	BaseURL   string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) get(path string) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	resp, err := c.HTTP.Get(url)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	var (
		baseURL = envOr("SIGNON_URL", "http://localhost:8080")
		out     = envOr("SIGNON_OUT", "text")
	)

	root := &cobra.Command{
		Use:   "signonctl",
		Short: "CLI de operación para signon",
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del servicio (env SIGNON_URL)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{HTTP: &http.Client{Timeout: 30 * time.Second}}
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cl.BaseURL = baseURL
		cl.OutFormat = out
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "Lista los providers configurados",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.get("/auth/providers")
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("providers fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Consulta /healthz",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.get("/healthz")
			if err != nil {
				return err
			}
			if cl.OutFormat == "text" && status/100 == 2 {
				fmt.Println("ok")
				return nil
			}
			cl.print(status, body)
			return nil
		},
	}

	// enc: sella un client_secret para pegarlo en config.yaml.
	encCmd := &cobra.Command{
		Use:   "enc [secreto]",
		Short: "Cifra un secreto con SECRETBOX_MASTER_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !secretbox.IsReady() {
				return fmt.Errorf("SECRETBOX_MASTER_KEY no está seteada")
			}
			sealed, err := secretbox.Encrypt(args[0])
			if err != nil {
				return err
			}
			fmt.Println(sealed)
			return nil
		},
	}

	root.AddCommand(providersCmd, healthCmd, encCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
