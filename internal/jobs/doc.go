// Package jobs contains the work functions that run as tasks.
//
// Each function follows the [tasks.WorkFunc] contract: it decodes and validates its JSON input, reports
// progress through the [tasks.Reporter] after every unit and returns the output location. A report that
// returns [tasks.ErrCancelled] ends the function, after it has closed whatever file or response it holds.
//
//   - file_processing : walk a directory, split text files into chunks and write a JSON manifest
//   - pdf_download, playlist_download, web_scraping : fetch a list of URLs into an output directory
//
// Downloads share one resty client and one rate limiter; each fetch runs under [recovery.Retry].
package jobs
