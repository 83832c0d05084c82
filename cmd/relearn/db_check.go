package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/relearn/internal/store"
)

var dbCheckCmd = &cobra.Command{
	Use:   "db-check",
	Short: "Probe the database connection and schema",
	Long:  `Connects to DATABASE_URL, ensures the schema, writes a throwaway record and removes it again. Useful for validating a deployment before scheduling runs.`,
	RunE:  runDbCheck,
}

func init() {
	rootCmd.AddCommand(dbCheckCmd)
}

func runDbCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	fmt.Println("🧪 Testing database connection...")

	st, err := store.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	fmt.Println("✅ Connected")

	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	fmt.Println("✅ Schema ensured")

	count, err := st.CountImages(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("📈 Current records in processed_images table: %d\n", count)

	testID := fmt.Sprintf("db-check-%d", time.Now().UnixNano())
	fmt.Println("➕ Inserting test record...")
	if _, err := st.RecordProcessed(ctx, testID, "db-check.jpg", time.Now()); err != nil {
		return err
	}

	newCount, err := st.CountImages(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("📈 Records after insert: %d\n", newCount)

	if err := st.DeleteImage(ctx, testID); err != nil {
		return err
	}
	fmt.Println("🧹 Test record cleaned up")

	posts, err := st.CountPosts(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("📈 Records in posts table: %d\n", posts)

	fmt.Println("🎉 Database check completed successfully!")
	return nil
}
