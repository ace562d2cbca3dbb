package seqcomp_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/hupe1980/seqcomp"
)

func Example() {
	ctx := context.Background()

	seq, err := seqcomp.New[float64]([]int{4, 4})
	if err != nil {
		log.Fatal(err)
	}
	defer seq.Close()

	i, err := seq.Append(ctx, seqcomp.Full(1.0, 4, 4))
	if err != nil {
		log.Fatal(err)
	}
	snapshot, err := seq.Get(ctx, i)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(seq.Len(), seq.Size(), seq.NDims(), snapshot.Data[5])
	// Output: 1 [4 4 1] 3 1
}

// Example_shards writes from two workers, one shard each.
func Example_shards() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "seqcomp-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	seq, err := seqcomp.New[float32]([]int{8},
		seqcomp.WithFolder(dir),
		seqcomp.WithShards(2),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer seq.Close()

	var wg sync.WaitGroup
	for k := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 3 {
				if _, err := seq.AppendShard(ctx, k, seqcomp.Full(float32(k), 8)); err != nil {
					log.Fatal(err)
				}
			}
		}()
	}
	wg.Wait()

	fmt.Println(seq.Len(), seq.Shards())
	// Output: 6 2
}
