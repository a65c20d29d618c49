// Package download provides the download orchestration logic for
// fetching gallery images.
//
// # Manager
//
// The Manager coordinates the whole batch:
//
//  1. Create the destination directory
//  2. Build the HTTP client (probing proxies once)
//  3. Download every pending image on a fixed-size worker pool
//  4. Verify each file (size and image signature)
//  5. Optionally start another pass with the images that failed
//
// # Basic Usage
//
//	manager := download.NewManager(settings, func(event download.ProgressEvent) {
//	    fmt.Println(event.Message)
//	}, download.WithProxyEnv(http.ProxyEnvFromOS()))
//
//	summary, err := manager.RunToCompletion(ctx, "downloads/1234", tasks, true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d failed\n", len(summary.Failed))
//
// # Concurrency
//
// settings.MaxConcurrentDownloads workers run per pass (16 by default). A
// worker keeps a task, backoff sleeps included, until it is done. The
// progress callback is called from worker goroutines and must be safe for
// concurrent use.
//
// # Retry Logic
//
// Every failure is classified into a DownloadError. Connect errors,
// timeouts, HTTP 429 and 5xx, and transient I/O errors are retried with
// exponential backoff and jitter (see RetryPolicy). HTTP 4xx, a full disk
// and files that are not images fail the task at once.
//
// Tasks still failing after a pass can be retried as a whole batch: with
// outer retry enabled the Manager waits settings.PassDelaySeconds and runs
// exactly the failed tasks again.
package download
