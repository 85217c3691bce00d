// Package sheets is the spreadsheet provider. Content operations go to
// the Sheets API; moving a new spreadsheet into the configured folder
// and granting access go to the Drive API. Both base URLs are
// injectable so tests run against local stubs.
package sheets
