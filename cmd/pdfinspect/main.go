// Command pdfinspect lists the images of a PDF without modifying it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfchunk/internal/config"
	"github.com/local/pdfchunk/internal/filetype"
	"github.com/local/pdfchunk/internal/inspect"
	"github.com/local/pdfchunk/internal/logger"
	"github.com/local/pdfchunk/internal/pdfdoc"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pdfinspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: pdfinspect [-json] <input_pdf>")
		return 2
	}
	input := fs.Arg(0)

	cfg := config.FromEnv()
	if err := logger.Init(logger.Options{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty, Service: "pdfinspect", Out: stderr}); err != nil {
		fmt.Fprintf(stderr, "pdfinspect: init logging: %v\n", err)
		return 2
	}
	defer logger.Close()

	if err := filetype.New().RequirePDF(input); err != nil {
		log.Error().Err(err).Str("input", input).Msg("not a pdf")
		return 1
	}
	doc, err := pdfdoc.Open(input)
	if err != nil {
		log.Error().Err(err).Str("input", input).Msg("open failed")
		return 1
	}
	defer doc.Close()

	infos, err := inspect.Images(doc)
	if err != nil {
		log.Error().Err(err).Msg("inspect failed")
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if infos == nil {
			infos = []inspect.ImageInfo{}
		}
		if err := enc.Encode(infos); err != nil {
			return 1
		}
		return 0
	}
	printTable(stdout, doc.PageCount(), infos)
	return 0
}

func printTable(w io.Writer, pages int, infos []inspect.ImageInfo) {
	fmt.Fprintf(w, "%d pages, %d image placements\n", pages, len(infos))
	if len(infos) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PAGE\tNAME\tOBJ\tSIZE\tCOLORSPACE\tFILTER\tBPC\tBYTES\tAPP14\t")
	for _, in := range infos {
		if in.Err != "" {
			fmt.Fprintf(tw, "%d\t%s\t%d\terror: %s\t\t\t\t\t\t\n", in.Page, in.Name, in.Object, in.Err)
			continue
		}
		app14 := "-"
		if in.APP14 != nil {
			app14 = strconv.Itoa(*in.APP14)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%dx%d\t%s\t%s\t%d\t%d\t%s\t\n",
			in.Page, in.Name, in.Object, in.Width, in.Height, in.ColorSpace, in.Filter, in.BitsPerComponent, in.Size, app14)
	}
	tw.Flush()
}
