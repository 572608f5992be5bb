package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quorumvault/quorumvault/pkg/blobstore"
	"github.com/quorumvault/quorumvault/pkg/log"
	"github.com/quorumvault/quorumvault/pkg/metadata"
	"github.com/quorumvault/quorumvault/pkg/types"
)

// quorumvaultctl is an offline administration tool. It opens a stopped
// node's on-disk blob store and metadata index directly, the way warrenctl
// reads a manager's BoltDB state for diagnostics, rather than talking to a
// running node over the peer protocol (quorumvault has no admin RPC; that
// surface is intentionally out of scope).
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var dataDir string

var rootCmd = &cobra.Command{
	Use:   "quorumvaultctl",
	Short: "Inspect a quorumvault node's on-disk state",
	Long: `quorumvaultctl reads the blob store and metadata index of a
quorumvault data directory directly. It is an offline inspection tool:
point it at a node's storage_path while the node is stopped, or at a
read-only copy/snapshot of it while the node is running.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "node storage_path to inspect (required)")
	_ = rootCmd.MarkPersistentFlagRequired("data-dir")

	cobra.OnInitialize(func() {
		log.Init(log.Config{Level: log.InfoLevel})
	})

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(bucketsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(catCmd)
}

func openIndex() (*metadata.Index, error) {
	return metadata.Open(dataDir)
}

func openStore() (*blobstore.Store, error) {
	return blobstore.Open(dataDir, 0)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print object count and total live bytes",
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex()
		if err != nil {
			return err
		}
		defer idx.Close()

		count, totalBytes, err := idx.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("objects: %d\nbytes:   %d\n", count, totalBytes)
		return nil
	},
}

var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "List all buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex()
		if err != nil {
			return err
		}
		defer idx.Close()

		buckets, err := idx.AllBuckets()
		if err != nil {
			return err
		}
		for _, b := range buckets {
			fmt.Printf("%s\t%s\t%s\n", b.Name, b.Region, b.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	},
}

var (
	listPrefix       string
	listMaxKeys      int
	listContinuation string
)

var listCmd = &cobra.Command{
	Use:   "list <bucket>",
	Short: "List live keys in a bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex()
		if err != nil {
			return err
		}
		defer idx.Close()

		keys, next, err := idx.ListKeys(args[0], listPrefix, listMaxKeys, listContinuation)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		if next != "" {
			fmt.Fprintf(os.Stderr, "# continuation: %s\n", next)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listPrefix, "prefix", "", "only list keys with this prefix")
	listCmd.Flags().IntVar(&listMaxKeys, "max-keys", 1000, "maximum keys to return")
	listCmd.Flags().StringVar(&listContinuation, "continuation", "", "continuation token from a previous call")
}

var versionsCmd = &cobra.Command{
	Use:   "versions <bucket> <key>",
	Short: "List all versions of a key, oldest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex()
		if err != nil {
			return err
		}
		defer idx.Close()

		versions, err := idx.ListVersions(args[0], args[1])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, v := range versions {
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
		return nil
	},
}

var catVersionID string

var catCmd = &cobra.Command{
	Use:   "cat <bucket> <key>",
	Short: "Print the blob bytes of a key's live (or a specific) version to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex()
		if err != nil {
			return err
		}
		defer idx.Close()

		store, err := openStore()
		if err != nil {
			return err
		}

		var meta *types.VersionMeta
		if catVersionID != "" {
			meta, err = idx.GetVersion(args[0], args[1], catVersionID)
		} else {
			meta, err = idx.GetLatestLive(args[0], args[1])
		}
		if err != nil {
			return err
		}
		if meta.IsDeleteMarker {
			return fmt.Errorf("version %s is a delete marker; no blob to read", meta.VersionID)
		}

		body, err := store.Read(meta.Digest)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(body)
		return err
	},
}

func init() {
	catCmd.Flags().StringVar(&catVersionID, "version-id", "", "specific version to read (defaults to the live version)")
}
