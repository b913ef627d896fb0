// Package pagestore is the raw file layer underneath the buffer pool. It opens
// table files and moves fixed-size pages between them and caller-owned
// buffers; it knows nothing about caching.
package pagestore

import (
	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
)

// PageStore is the durable page I/O the buffer pool is built on.
type PageStore interface {
	// Open prepares the store for use. It is called once by the buffer pool
	// during initialization.
	Open() error
	// OpenTableFile opens (creating if needed) the table file at path and
	// returns its identifier. A new file starts with an initialized header page.
	// Opening the same path twice returns the same identifier.
	OpenTableFile(path string) (pagemanager.TableID, error)
	// ReadPage fills dst with the page's on-disk content.
	ReadPage(tableID pagemanager.TableID, pageNum pagemanager.PageNum, dst []byte) error
	// WritePage writes src at the page's on-disk offset.
	WritePage(tableID pagemanager.TableID, pageNum pagemanager.PageNum, src []byte) error
	// AppendRawPage extends the table file with a page that lies past its
	// current end. It exists for file growth, where the new pages cannot be
	// cached yet, and refuses to overwrite a page inside the current extent.
	AppendRawPage(tableID pagemanager.TableID, pageNum pagemanager.PageNum, src []byte) error
	// CloseTableFiles flushes and closes every table file opened so far.
	CloseTableFiles() error
}

func checkPageBuffer(buf []byte) error {
	if len(buf) != pagemanager.PageSize {
		return ErrShortPageBuffer
	}
	return nil
}
