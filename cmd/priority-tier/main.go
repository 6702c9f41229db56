// Operator tool for the matchmaking priority tier: projects in the tier get
// guaranteed voting coverage ahead of the general pool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/shipfest/ship-votes/src/api/config"
	"github.com/shipfest/ship-votes/src/api/data"
)

var (
	addFlag     = flag.Uint64("add", 0, "Project id to add to the priority tier")
	removeFlag  = flag.Uint64("remove", 0, "Project id to remove from the priority tier")
	listFlag    = flag.Bool("list", false, "List the current priority tier")
	timeoutFlag = flag.Duration("timeout", 10*time.Second, "Redis operation timeout")
)

func main() {
	log.SetFlags(0)
	flag.Parse()

	cfg := config.Load()
	rdb := data.MustRedis(cfg.RedisURL)
	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	switch {
	case *addFlag != 0:
		if err := data.AddPriorityProject(ctx, rdb, *addFlag); err != nil {
			log.Fatalf("add: %v", err)
		}
		fmt.Printf("project %d added\n", *addFlag)
	case *removeFlag != 0:
		if err := data.RemovePriorityProject(ctx, rdb, *removeFlag); err != nil {
			log.Fatalf("remove: %v", err)
		}
		fmt.Printf("project %d removed\n", *removeFlag)
	case *listFlag:
		set, err := data.PriorityProjects(ctx, rdb)
		if err != nil {
			log.Fatalf("list: %v", err)
		}
		ids := make([]uint64, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			fmt.Println(strconv.FormatUint(id, 10))
		}
	default:
		flag.Usage()
	}
}
