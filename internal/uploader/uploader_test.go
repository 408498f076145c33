package uploader

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCorner plays both the API and the storage provider.
type fakeCorner struct {
	t        *testing.T
	srv      *httptest.Server
	protocol string

	mu          sync.Mutex
	stored      map[string][]byte
	registered  []registerRequest
	pinned      []string
	initiates   int
	noLocation  bool
	rejectPut   map[string]bool
	groupsMade  int
	badSessions map[string]bool
	signedTypes map[string]string
}

func newFakeCorner(t *testing.T, protocol string) *fakeCorner {
	f := &fakeCorner{
		t:           t,
		protocol:    protocol,
		stored:      map[string][]byte{},
		rejectPut:   map[string]bool{},
		badSessions: map[string]bool{},
		signedTypes: map[string]string{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/memory-groups", f.createGroup)
	mux.HandleFunc("POST /api/upload", f.session)
	mux.HandleFunc("POST /api/media", f.register)
	mux.HandleFunc("POST /api/lockets/{id}/pinned", f.pin)
	mux.HandleFunc("POST /storage/{key}", f.initiate)
	mux.HandleFunc("PUT /storage/{key}", f.put)
	mux.HandleFunc("PUT /session/{key}", f.put)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": status < 300, "data": data})
}

func (f *fakeCorner) createGroup(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.groupsMade++
	f.mu.Unlock()
	writeData(w, http.StatusCreated, map[string]string{"id": "g-new"})
}

func (f *fakeCorner) session(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	if strings.HasPrefix(req.FileType, "application/") {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Invalid file type. Only images and videos are allowed."})
		return
	}
	key := "k-" + req.Filename
	contentType, _, err := mime.ParseMediaType(req.FileType)
	if err != nil {
		contentType = req.FileType
	}
	f.mu.Lock()
	f.signedTypes[key] = contentType
	f.mu.Unlock()
	method, headers := http.MethodPut, map[string]string{"Content-Type": contentType}
	if f.protocol == protocolResumable {
		method = http.MethodPost
		headers["X-Goog-Resumable"] = "start"
	}
	writeData(w, http.StatusOK, Session{
		UploadURL:  f.srv.URL + "/storage/" + key,
		StorageKey: "media/" + key,
		PublicURL:  "https://cdn.example.com/media/" + key,
		Method:     method,
		Headers:    headers,
		Protocol:   f.protocol,
	})
}

func (f *fakeCorner) initiate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.initiates++
	f.mu.Unlock()
	assert.Equal(f.t, "start", r.Header.Get("X-Goog-Resumable"))
	if !f.noLocation {
		w.Header().Set("Location", f.srv.URL+"/session/"+r.PathValue("key"))
	}
	w.WriteHeader(http.StatusCreated)
}

func (f *fakeCorner) put(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if f.rejectPut[key] {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	f.mu.Lock()
	signed := f.signedTypes[key]
	f.mu.Unlock()
	if strings.HasPrefix(r.URL.Path, "/storage/") && r.Header.Get("Content-Type") != signed {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	b, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)
	f.mu.Lock()
	f.stored[key] = b
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeCorner) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	f.mu.Lock()
	f.registered = append(f.registered, req)
	f.mu.Unlock()
	writeData(w, http.StatusCreated, Media{ID: "m-" + req.Filename, MemoryGroupID: *req.MemoryGroupID, StorageKey: req.StorageKey})
}

func (f *fakeCorner) pin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	f.mu.Lock()
	f.pinned = append(f.pinned, req.MemoryID)
	f.mu.Unlock()
	writeData(w, http.StatusOK, map[string]string{"memoryGroupId": req.MemoryID})
}

func (f *fakeCorner) driver() *Driver {
	return New(Options{BaseURL: f.srv.URL, Token: "t", HTTPClient: f.srv.Client()})
}

type recorder struct {
	mu     sync.Mutex
	events map[string][]Event
}

func (r *recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[string][]Event{}
	}
	r.events[e.File] = append(r.events[e.File], e)
}

func (r *recorder) progress(file string) []int {
	var out []int
	for _, e := range r.events[file] {
		out = append(out, e.Progress)
	}
	return out
}

func TestUpload_Resumable(t *testing.T) {
	fc := newFakeCorner(t, protocolResumable)
	rec := &recorder{}

	results, err := fc.driver().Upload(context.Background(),
		Target{LocketID: "l1", Pin: true},
		[]*File{NewFile("a.png", "image/png", []byte("png-bytes"))},
		rec.record,
	)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	assert.Equal(t, StateDone, results[0].State)
	assert.Equal(t, "m-a.png", results[0].Media.ID)
	assert.Equal(t, []byte("png-bytes"), fc.stored["k-a.png"])
	assert.Equal(t, 1, fc.initiates)
	assert.Equal(t, 1, fc.groupsMade)
	assert.Equal(t, []string{"g-new"}, fc.pinned)
	assert.Equal(t, []int{10, 20, 30, 50, 80, 90, 100, 100}, rec.progress("a.png"))
	assert.Equal(t, "media/k-a.png", fc.registered[0].StorageKey)
}

func TestUpload_Single_ExistingGroup(t *testing.T) {
	fc := newFakeCorner(t, protocolSingle)
	rec := &recorder{}

	results, err := fc.driver().Upload(context.Background(),
		Target{LocketID: "l1", MemoryGroupID: "g-old"},
		[]*File{NewFile("clip.mp4", "video/mp4", []byte("mp4"))},
		rec.record,
	)
	require.NoError(t, err)
	require.NoError(t, results[0].Err)

	assert.Zero(t, fc.initiates)
	assert.Zero(t, fc.groupsMade)
	assert.Empty(t, fc.pinned)
	assert.Equal(t, "g-old", *fc.registered[0].MemoryGroupID)
	assert.Equal(t, []int{10, 30, 50, 80, 90, 100}, rec.progress("clip.mp4"))
}

func TestUpload_Single_SendsSignedContentType(t *testing.T) {
	fc := newFakeCorner(t, protocolSingle)

	results, err := fc.driver().Upload(context.Background(),
		Target{LocketID: "l1", MemoryGroupID: "g1"},
		[]*File{NewFile("a.png", "image/PNG; name=a.png", []byte("png"))},
		nil,
	)
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.Equal(t, []byte("png"), fc.stored["k-a.png"])
}

func TestUpload_MissingLocationNeverTransfers(t *testing.T) {
	fc := newFakeCorner(t, protocolResumable)
	fc.noLocation = true

	results, err := fc.driver().Upload(context.Background(),
		Target{LocketID: "l1", MemoryGroupID: "g1"},
		[]*File{NewFile("a.png", "image/png", []byte("x"))},
		nil,
	)
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, ErrNoSessionURL)
	assert.Equal(t, StateFailed, results[0].State)
	assert.Empty(t, fc.stored)
	assert.Empty(t, fc.registered)
}

func TestUpload_FailuresAreIndependent(t *testing.T) {
	fc := newFakeCorner(t, protocolSingle)
	fc.rejectPut["k-b.png"] = true

	files := []*File{
		NewFile("a.png", "image/png", []byte("a")),
		NewFile("b.png", "image/png", []byte("b")),
		NewFile("c.zip", "application/zip", []byte("c")),
		NewFile("d.png", "image/png", []byte("d")),
	}
	results, err := fc.driver().Upload(context.Background(), Target{LocketID: "l1", MemoryGroupID: "g1"}, files, nil)
	require.NoError(t, err)

	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	var apiErr *APIError
	require.ErrorAs(t, results[2].Err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.NoError(t, results[3].Err)

	assert.Len(t, fc.registered, 2, "failed transfers are never registered")
	assert.Equal(t, StateDone, results[0].State)
	assert.Equal(t, StateFailed, results[1].State)
}

func TestFlow_RejectsSkippedStates(t *testing.T) {
	fl := newFlow("a.png", nil)
	assert.Error(t, fl.advance(StateTransferInitiated, ProgressTransferInitiated))
	require.NoError(t, fl.advance(StateCredentialRequested, ProgressCredentialRequested))
	assert.Error(t, fl.advance(StateRegistered, ProgressRegistered))
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")

	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(0, 0, color.White)
	out, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(out, img))
	require.NoError(t, out.Close())

	f, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "photo.png", f.Name)
	assert.Equal(t, "image/png", f.ContentType)
	require.NotNil(t, f.Width)
	assert.Equal(t, 4, *f.Width)
	assert.Equal(t, 3, *f.Height)

	_, err = Inspect(dir)
	assert.Error(t, err)
}

// exifSegment builds a JPEG APP1 segment whose Exif IFD holds only
// DateTimeOriginal.
func exifSegment(taken string) []byte {
	var tiff bytes.Buffer
	put := func(vs ...any) {
		for _, v := range vs {
			_ = binary.Write(&tiff, binary.BigEndian, v)
		}
	}
	tiff.WriteString("MM")
	put(uint16(42), uint32(8))

	// IFD0 at 8: a single ExifIFDPointer entry.
	put(uint16(1), uint16(0x8769), uint16(4), uint32(1), uint32(26), uint32(0))

	// Exif IFD at 26: DateTimeOriginal stored at 44.
	put(uint16(1), uint16(0x9003), uint16(2), uint32(len(taken)+1), uint32(44), uint32(0))
	tiff.WriteString(taken)
	tiff.WriteByte(0)

	var seg bytes.Buffer
	seg.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&seg, binary.BigEndian, uint16(2+6+tiff.Len()))
	seg.WriteString("Exif\x00\x00")
	seg.Write(tiff.Bytes())
	return seg.Bytes()
}

func TestInspect_CaptureTime(t *testing.T) {
	var enc bytes.Buffer
	require.NoError(t, jpeg.Encode(&enc, image.NewRGBA(image.Rect(0, 0, 6, 2)), nil))
	raw := enc.Bytes()

	// SOI, then the Exif segment, then the rest of the encoded image.
	data := append([]byte{}, raw[:2]...)
	data = append(data, exifSegment("2023:03:14 15:09:26")...)
	data = append(data, raw[2:]...)

	path := filepath.Join(t.TempDir(), "IMG_0001.jpg")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	f, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", f.ContentType)
	require.NotNil(t, f.Width)
	assert.Equal(t, 6, *f.Width)
	require.NotNil(t, f.TakenAt)
	assert.Equal(t, "2023-03-14 15:09:26", f.TakenAt.Format("2006-01-02 15:04:05"))
}

func TestInspect_NoCaptureTime(t *testing.T) {
	var enc bytes.Buffer
	require.NoError(t, jpeg.Encode(&enc, image.NewRGBA(image.Rect(0, 0, 2, 2)), nil))
	path := filepath.Join(t.TempDir(), "plain.jpg")
	require.NoError(t, os.WriteFile(path, enc.Bytes(), 0o600))

	f, err := Inspect(path)
	require.NoError(t, err)
	assert.Nil(t, f.TakenAt)
}
