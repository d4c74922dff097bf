package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	otfadmit "github.com/nsip/otf-admit"
	"github.com/peterbourgon/ff/v3"
)

func main() {

	fs := flag.NewFlagSet("otf-admit", flag.ExitOnError)
	var (
		_              = fs.String("config", "", "config file (optional), json format.")
		serviceName    = fs.String("name", "", "name for this calculation service instance")
		serviceID      = fs.String("id", "", "id for this calculation service instance, leave blank to auto-generate a unique id")
		serviceHost    = fs.String("host", "localhost", "name/address of host for this service")
		servicePort    = fs.Int("port", 0, "port to run service on, if not specified will assign an available port automatically")
		institutionDir = fs.String("institutions", "", "directory of extra institution definitions (*.yaml), replaces bundled ones with the same code")
		workers        = fs.Int("workers", 0, "number of students scored concurrently in a batch, 0 uses the number of cpus")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.JSONParser),
		ff.WithEnvVarPrefix("OTF_ADMIT_SRVC"),
	); err != nil {
		fmt.Printf("\nCannot parse otf-admit configuration:\n%s\n\n", err)
		os.Exit(1)
	}

	opts := []otfadmit.Option{
		otfadmit.Name(*serviceName),
		otfadmit.ID(*serviceID),
		otfadmit.Host(*serviceHost),
		otfadmit.Port(*servicePort),
		otfadmit.InstitutionDir(*institutionDir),
		otfadmit.Workers(*workers),
	}

	srvc, err := otfadmit.New(opts...)
	if err != nil {
		fmt.Printf("\nCannot create otf-admit service:\n%s\n\n", err)
		os.Exit(1)
	}

	srvc.PrintConfig()

	// signal handler for shutdown
	closed := make(chan struct{})
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, os.Interrupt)
	go func() {
		<-c
		fmt.Println("\notf-admit shutting down")
		srvc.Shutdown()
		fmt.Println("otf-admit closed")
		close(closed)
	}()

	srvc.Start()

	// block until shutdown by sig-handler
	<-closed

}
