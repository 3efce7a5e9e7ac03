// Package inbox admits signed policy updates dropped into a directory.
//
// Operators (or a deployment agent) write wire documents into the inbox
// directory. Every *.json file is handed to the policy store once it has
// been quiet for the debounce interval: policy documents are admitted or
// supersede an older version, removal requests deactivate a policy. The file
// is then moved to processed/ or rejected/; a rejected file gets a sibling
// .reason file carrying the admission error.
//
// Basic usage:
//
//	w, err := inbox.NewWatcher(&inbox.Config{Dir: "/var/lib/governor/inbox"}, st, registry, logger)
//	if err != nil {
//	    return err
//	}
//	if _, err := w.Scan(); err != nil {
//	    return err
//	}
//	go w.Watch(ctx)
//	defer w.Stop()
package inbox
