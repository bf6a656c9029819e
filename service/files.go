package service

import "videotube/util"

// Slot names a logical upload field. Values match the multipart field names.
type Slot string

const (
	SlotAvatar     Slot = "avatar"
	SlotCoverImage Slot = "coverImage"
	SlotVideo      Slot = "video"
	SlotThumbnail  Slot = "thumbnail"
)

// Media is the family of files a slot accepts.
type Media int

const (
	MediaImage Media = iota
	MediaVideo
)

func (m Media) String() string {
	if m == MediaVideo {
		return "video"
	}
	return "image"
}

// UploadedFile is one multipart file already written to local disk.
type UploadedFile struct {
	Field     string `validate:"required"`
	LocalPath string `validate:"required"`
	MimeType  string // declared by the client, informational only
	Size      int64  `validate:"gte=0"`
}

// SlotFile binds an optional file to the rule of its slot.
type SlotFile struct {
	Slot     Slot
	File     *UploadedFile
	Required bool
	Media    Media
}

// FileSet is the closed set of slots one endpoint accepts.
type FileSet interface {
	Slots() []SlotFile
}

// RegistrationFiles 注册时可选的头像和封面
type RegistrationFiles struct {
	Avatar     *UploadedFile
	CoverImage *UploadedFile
}

func (f RegistrationFiles) Slots() []SlotFile {
	return []SlotFile{
		{Slot: SlotAvatar, File: f.Avatar, Media: MediaImage},
		{Slot: SlotCoverImage, File: f.CoverImage, Media: MediaImage},
	}
}

type AvatarFiles struct {
	Avatar UploadedFile
}

func (f AvatarFiles) Slots() []SlotFile {
	return []SlotFile{{Slot: SlotAvatar, File: present(f.Avatar), Required: true, Media: MediaImage}}
}

type CoverImageFiles struct {
	CoverImage UploadedFile
}

func (f CoverImageFiles) Slots() []SlotFile {
	return []SlotFile{{Slot: SlotCoverImage, File: present(f.CoverImage), Required: true, Media: MediaImage}}
}

// VideoPublishFiles 发布视频必须同时带视频和缩略图
type VideoPublishFiles struct {
	Video     UploadedFile
	Thumbnail UploadedFile
}

func (f VideoPublishFiles) Slots() []SlotFile {
	return []SlotFile{
		{Slot: SlotVideo, File: present(f.Video), Required: true, Media: MediaVideo},
		{Slot: SlotThumbnail, File: present(f.Thumbnail), Required: true, Media: MediaImage},
	}
}

type ThumbnailFiles struct {
	Thumbnail UploadedFile
}

func (f ThumbnailFiles) Slots() []SlotFile {
	return []SlotFile{{Slot: SlotThumbnail, File: present(f.Thumbnail), Required: true, Media: MediaImage}}
}

// present maps a zero-valued required file to an absent slot.
func present(f UploadedFile) *UploadedFile {
	if f.LocalPath == "" {
		return nil
	}
	return &f
}

// LocalPaths lists the on-disk paths of every file in the set.
func LocalPaths(set FileSet) []string {
	var paths []string
	for _, s := range set.Slots() {
		if s.File != nil && s.File.LocalPath != "" {
			paths = append(paths, s.File.LocalPath)
		}
	}
	return paths
}

// Discard removes every local file of the set.
func Discard(set FileSet) {
	if set == nil {
		return
	}
	util.RemoveAll(LocalPaths(set))
}
