package pagestore

import (
	"fmt"
	"sync"

	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
)

// MemStore keeps table files in memory. Content survives CloseTableFiles, so
// a table reopened by path sees what was written before, like a file would.
type MemStore struct {
	mu     sync.Mutex
	opened bool
	files  map[string][][]byte // path -> pages
	open   map[pagemanager.TableID]string
	ids    map[string]pagemanager.TableID
	nextID pagemanager.TableID
}

var _ PageStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		files:  make(map[string][][]byte),
		open:   make(map[pagemanager.TableID]string),
		ids:    make(map[string]pagemanager.TableID),
		nextID: 1,
	}
}

func (s *MemStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return nil
}

func (s *MemStore) OpenTableFile(path string) (pagemanager.TableID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return pagemanager.InvalidTableID, ErrStoreClosed
	}
	if id, ok := s.ids[path]; ok {
		return id, nil
	}
	if _, ok := s.files[path]; !ok {
		header := pagemanager.NewPage()
		header.InitHeader()
		s.files[path] = [][]byte{header.GetData()}
	}
	id := s.nextID
	s.nextID++
	s.open[id] = path
	s.ids[path] = id
	return id, nil
}

func (s *MemStore) pages(tableID pagemanager.TableID) ([][]byte, string, error) {
	path, ok := s.open[tableID]
	if !ok {
		return nil, "", fmt.Errorf("%w: table %d", ErrTableNotOpen, tableID)
	}
	return s.files[path], path, nil
}

func (s *MemStore) ReadPage(tableID pagemanager.TableID, pageNum pagemanager.PageNum, dst []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages, _, err := s.pages(tableID)
	if err != nil {
		return err
	}
	if err := checkPageBuffer(dst); err != nil {
		return err
	}
	if uint64(pageNum) >= uint64(len(pages)) || pages[pageNum] == nil {
		return fmt.Errorf("%w: page %d of table %d is beyond end of file", ErrIO, pageNum, tableID)
	}
	copy(dst, pages[pageNum])
	return nil
}

func (s *MemStore) WritePage(tableID pagemanager.TableID, pageNum pagemanager.PageNum, src []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(tableID, pageNum, src, false)
}

func (s *MemStore) AppendRawPage(tableID pagemanager.TableID, pageNum pagemanager.PageNum, src []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(tableID, pageNum, src, true)
}

func (s *MemStore) write(tableID pagemanager.TableID, pageNum pagemanager.PageNum, src []byte, raw bool) error {
	pages, path, err := s.pages(tableID)
	if err != nil {
		return err
	}
	if err := checkPageBuffer(src); err != nil {
		return err
	}
	if raw && uint64(pageNum) < uint64(len(pages)) {
		return fmt.Errorf("%w: page %d of table %d (file holds %d pages)", ErrRawWriteOverlap, pageNum, tableID, len(pages))
	}
	for uint64(len(pages)) <= uint64(pageNum) {
		pages = append(pages, make([]byte, pagemanager.PageSize))
	}
	copy(pages[pageNum], src)
	s.files[path] = pages
	return nil
}

// NumPages reports how many pages the table currently holds.
func (s *MemStore) NumPages(tableID pagemanager.TableID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages, _, err := s.pages(tableID)
	if err != nil {
		return 0, err
	}
	return uint64(len(pages)), nil
}

func (s *MemStore) CloseTableFiles() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = make(map[pagemanager.TableID]string)
	s.ids = make(map[string]pagemanager.TableID)
	s.opened = false
	return nil
}
