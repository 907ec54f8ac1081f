// vaultctl is a command line client for a running vaultd. Each subcommand
// builds one request envelope, posts it to the HTTP bridge, and prints the
// response envelope.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

var addrFlag = &cli.StringFlag{
	Name:  "addr",
	Value: "http://127.0.0.1:8080",
	Usage: "address of the vaultd HTTP bridge",
}

var sessionFlag = &cli.StringFlag{
	Name:  "session",
	Usage: "session id to bind the request to",
}

var nameFlag = &cli.StringFlag{
	Name:     "name",
	Required: true,
	Usage:    "secret name",
}

func main() {
	app := &cli.App{
		Name:  "vaultctl",
		Usage: "Talk to a vaultd instance",
		Flags: []cli.Flag{addrFlag},
		Commands: []*cli.Command{
			{
				Name:  "discover",
				Usage: "Query protocol version and capabilities",
				Action: func(cCtx *cli.Context) error {
					return post(cCtx, map[string]interface{}{"op": "DISCOVER"})
				},
			},
			{
				Name:  "authenticate",
				Usage: "Establish a session with a PIN",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pin", Required: true, Usage: "device PIN"},
					&cli.StringFlag{Name: "workspace", Usage: "workspace tag for the session"},
					&cli.UintFlag{Name: "ttl", Usage: "session lifetime in seconds"},
				},
				Action: func(cCtx *cli.Context) error {
					req := map[string]interface{}{
						"op":  "AUTHENTICATE",
						"pin": cCtx.String("pin"),
					}
					if ws := cCtx.String("workspace"); ws != "" {
						req["workspace"] = ws
					}
					if ttl := cCtx.Uint("ttl"); ttl != 0 {
						req["ttl"] = ttl
					}
					return post(cCtx, req)
				},
			},
			{
				Name:  "store",
				Usage: "Store a named secret",
				Flags: []cli.Flag{
					nameFlag,
					&cli.StringFlag{Name: "value", Required: true, Usage: "secret value"},
					sessionFlag,
				},
				Action: func(cCtx *cli.Context) error {
					return post(cCtx, withSession(cCtx, map[string]interface{}{
						"op":    "STORE",
						"name":  cCtx.String("name"),
						"value": cCtx.String("value"),
					}))
				},
			},
			{
				Name:  "retrieve",
				Usage: "Retrieve a named secret",
				Flags: []cli.Flag{nameFlag, sessionFlag},
				Action: func(cCtx *cli.Context) error {
					return post(cCtx, withSession(cCtx, map[string]interface{}{
						"op":   "RETRIEVE",
						"name": cCtx.String("name"),
					}))
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a named secret",
				Flags: []cli.Flag{nameFlag, sessionFlag},
				Action: func(cCtx *cli.Context) error {
					return post(cCtx, withSession(cCtx, map[string]interface{}{
						"op":   "DELETE",
						"name": cCtx.String("name"),
					}))
				},
			},
			{
				Name:  "list",
				Usage: "List stored secret names",
				Flags: []cli.Flag{sessionFlag},
				Action: func(cCtx *cli.Context) error {
					return post(cCtx, withSession(cCtx, map[string]interface{}{"op": "LIST"}))
				},
			},
			{
				Name:  "rotate",
				Usage: "Replace the value of a named secret",
				Flags: []cli.Flag{
					nameFlag,
					&cli.StringFlag{Name: "value", Required: true, Usage: "replacement value"},
					sessionFlag,
				},
				Action: func(cCtx *cli.Context) error {
					return post(cCtx, withSession(cCtx, map[string]interface{}{
						"op":    "ROTATE",
						"name":  cCtx.String("name"),
						"value": cCtx.String("value"),
					}))
				},
			},
			{
				Name:  "challenge",
				Usage: "Run the hardware presence check",
				Action: func(cCtx *cli.Context) error {
					return post(cCtx, map[string]interface{}{"op": "HW_CHALLENGE"})
				},
			},
			{
				Name:  "sign",
				Usage: "Sign data with a device key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "data", Required: true, Usage: "data to sign, hex encoded"},
					&cli.StringFlag{Name: "key", Usage: "key label (attestation, agent, recovery)"},
					sessionFlag,
				},
				Action: func(cCtx *cli.Context) error {
					if _, err := hex.DecodeString(cCtx.String("data")); err != nil {
						return fmt.Errorf("--data must be hex encoded: %w", err)
					}
					req := withSession(cCtx, map[string]interface{}{
						"op":   "HW_SIGN",
						"data": cCtx.String("data"),
					})
					if key := cCtx.String("key"); key != "" {
						req["key_name"] = key
					}
					return post(cCtx, req)
				},
			},
			{
				Name:  "attest",
				Usage: "Request a signed device identity document",
				Flags: []cli.Flag{sessionFlag},
				Action: func(cCtx *cli.Context) error {
					return post(cCtx, withSession(cCtx, map[string]interface{}{"op": "HW_ATTEST"}))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withSession(cCtx *cli.Context, req map[string]interface{}) map[string]interface{} {
	if session := cCtx.String("session"); session != "" {
		req["session_id"] = session
	}
	return req
}

func post(cCtx *cli.Context, req map[string]interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(cCtx.String(addrFlag.Name)+"/api/v1/command", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	fmt.Println(string(out))
	return nil
}
