// Package main writes a development CA, a server certificate and a client
// certificate for running the SchoolBus stub server over (mutual) TLS.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/atinyakov/SchoolBus/internal/certgen"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("certgen", flag.ContinueOnError)
	dir := fs.String("dir", "certs", "output directory")
	hosts := fs.String("hosts", "localhost,127.0.0.1", "comma-separated server host names and IPs")
	client := fs.String("client", "dispatch-console", "client certificate common name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var hostList []string
	for _, h := range strings.Split(*hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hostList = append(hostList, h)
		}
	}
	if len(hostList) == 0 {
		return fmt.Errorf("at least one host is required")
	}

	b, err := certgen.WriteDevBundle(*dir, hostList, *client)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Certificates written to %s\n\n", *dir)
	fmt.Fprintf(out, "server: CERT_FILE=%s KEY_FILE=%s CA_FILE=%s\n", b.ServerCert, b.ServerKey, b.CACert)
	fmt.Fprintf(out, "client: API_URL=https://%s:5000/api CA_FILE=%s CERT_FILE=%s KEY_FILE=%s\n",
		hostList[0], b.CACert, b.ClientCert, b.ClientKey)
	return nil
}
