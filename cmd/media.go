package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/Shivansh-Atwal/trackstack/storage"

	"github.com/spf13/cobra"
)

var (
	mediaPrefix string
	mediaStats  bool
	mediaDelete bool
	mediaYes    bool
)

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Inspect and clean up stored media",
	Long:  `List uploaded beats and recordings in the MinIO bucket, print bucket statistics, or delete every object under a prefix.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		client, err := storage.NewMinioClient(cfg)
		if err != nil {
			return err
		}
		relay := storage.NewMinioRelay(client, cfg.MinioBucket, cfg.MediaPublicBaseURL, cfg.MaxBodyBytes)
		fmt.Fprintf(out, "MinIO: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if mediaDelete {
			if mediaPrefix == "" {
				return errors.New("--delete requires --prefix")
			}
			if !mediaYes {
				return fmt.Errorf("refusing to delete %q without --yes", mediaPrefix)
			}
			removed, err := relay.DeletePrefix(cmd.Context(), mediaPrefix)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Deleted %d objects under %s\n", removed, mediaPrefix)
			return nil
		}

		objects, stats, err := relay.List(cmd.Context(), mediaPrefix)
		if err != nil {
			return err
		}
		if mediaStats {
			printStats(out, stats)
			return nil
		}
		printObjects(out, objects)
		return nil
	},
}

func printObjects(out io.Writer, objects []storage.ObjectInfo) {
	if len(objects) == 0 {
		fmt.Fprintln(out, "No objects found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSIZE\tMODIFIED")
	for _, o := range objects {
		fmt.Fprintf(w, "%s\t%s\t%s\n", o.Key, storage.FormatSize(o.Size), o.LastModified.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}

func printStats(out io.Writer, stats *storage.BucketStats) {
	fmt.Fprintf(out, "Objects:       %d\n", stats.TotalObjects)
	fmt.Fprintf(out, "Total size:    %s\n", storage.FormatSize(stats.TotalSize))
	if !stats.LastModified.IsZero() {
		fmt.Fprintf(out, "Last modified: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
	}
	printCounts(out, "By folder:", stats.ByFolder)
	printCounts(out, "By extension:", stats.ByExtension)
}

func printCounts(out io.Writer, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(out, title)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-24s %d\n", k, counts[k])
	}
}

func init() {
	rootCmd.AddCommand(mediaCmd)

	mediaCmd.Flags().StringVarP(&mediaPrefix, "prefix", "p", "", "only objects whose key starts with this prefix")
	mediaCmd.Flags().BoolVarP(&mediaStats, "stats", "s", false, "print bucket statistics instead of the object list")
	mediaCmd.Flags().BoolVarP(&mediaDelete, "delete", "d", false, "delete every object under --prefix")
	mediaCmd.Flags().BoolVar(&mediaYes, "yes", false, "confirm --delete")

	mediaCmd.Example = `  # List every object
  trackstack media

  # Only beats
  trackstack media -p trackstack/beats/

  # Bucket statistics
  trackstack media -s

  # Remove every recording
  trackstack media -d -p trackstack/recordings/ --yes`
}
