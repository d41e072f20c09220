package main

import (
	"context"
	"fmt"
	"time"
)

// purgeSessions deletes session rows that have been expired for longer than
// the grace period. A zero grace purges everything already expired.
func (cli *commandLine) purgeSessions(grace time.Duration) error {
	n, err := cli.sessSvc.PurgeExpired(context.Background(), grace)
	if err != nil {
		return err
	}
	fmt.Printf("purged %d expired session(s)\n", n)
	return nil
}
