// Package repository indexes a remote GitHub or GitLab repository into an
// in-memory corpus of decoded file contents.
//
// A run resolves the default branch, lists the recursive tree, filters out
// binary and excluded paths, then fetches contents in small concurrent
// batches separated by a fixed delay. Branch and tree lookups are retried
// with exponential backoff and are fatal when they keep failing; a failed
// file fetch only drops that file.
//
// Progress is delivered on a caller-supplied channel as a non-decreasing
// fraction that always ends at exactly 1.0:
//
//	progress := make(chan float64)
//	go func() {
//	    for p := range progress {
//	        fmt.Printf("%.0f%%\n", p*100)
//	    }
//	}()
//	res, err := svc.Index(ctx, repository.IndexRequest{
//	    Repository: "octo/cat",
//	    Token:      token,
//	    Provider:   repository.ProviderGitHub,
//	}, progress)
//	close(progress)
package repository
