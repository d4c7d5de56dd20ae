// Package crawler walks a paginated news listing by offset, dispatching the
// headline article of each page to an ArticleFetcher that persists it.
//
// Discovery is sequential so the offset at which a run halts is exact.
// Article visits may run on a bounded pool; every fetch passes the robots
// gate and the global rate ceiling before it is sent.
package crawler
