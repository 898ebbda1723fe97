package cells

// Logging convention in the `cells` package (glog):
// Info:
//     one time events on document and template files, e.g. open, save, scan
// Error:
//     persistence failures. these are also published as a `DocumentError` event
// V(1):
//     view bridge connections
// V(2):
//     every dispatched mutation, with the resulting track count
