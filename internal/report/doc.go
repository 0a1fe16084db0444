// Package report renders ranked analysis results.
//
// Three formats are supported: a plain terminal listing, a Markdown document
// with a Mermaid pie chart, and JSON for tooling. MultiWriter fans one result
// out to several writers.
package report
