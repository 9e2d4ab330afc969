package vtstream

import (
	"github.com/andewx/vtstream/vtex"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// SparseImage is a partially resident 2D color image. Its pages are bound by
// a vtex.Scheduler through a SparseDevice; only the mip tail, if the image
// has one, is bound here.
type SparseImage struct {
	device *CoreDevice
	handle vk.Image
	format vk.Format
	extent vk.Extent2D
	levels uint32

	granularity  vk.Extent3D
	alignment    uint64
	typeBits     uint32
	tailFirstLod uint32
	tailSize     uint64
	tailOffset   uint64
	tailMemory   vk.DeviceMemory
	hasTail      bool
}

// NewSparseImage creates the image and reads its sparse memory requirements.
func NewSparseImage(device *CoreDevice, width, height, levels uint32) (*SparseImage, error) {
	img := &SparseImage{
		device: device,
		format: vk.FormatR8g8b8a8Unorm,
		extent: vk.Extent2D{Width: width, Height: height},
		levels: levels,
	}

	ret := vk.CreateImage(device.handle, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		Flags:         vk.ImageCreateFlags(vk.ImageCreateSparseBindingBit | vk.ImageCreateSparseResidencyBit),
		ImageType:     vk.ImageType2d,
		Format:        img.format,
		Extent:        vk.Extent3D{Width: width, Height: height, Depth: 1},
		MipLevels:     levels,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &img.handle)
	if isError(ret) {
		return nil, NewError(ret)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device.handle, img.handle, &reqs)
	reqs.Deref()
	img.alignment = uint64(reqs.Alignment)
	img.typeBits = reqs.MemoryTypeBits

	var count uint32
	vk.GetImageSparseMemoryRequirements(device.handle, img.handle, &count, nil)
	if count == 0 {
		img.Destroy()
		return nil, errors.New("image reports no sparse memory requirements")
	}
	sparse := make([]vk.SparseImageMemoryRequirements, count)
	vk.GetImageSparseMemoryRequirements(device.handle, img.handle, &count, sparse)

	found := false
	for i := range sparse {
		sparse[i].Deref()
		sparse[i].FormatProperties.Deref()
		props := sparse[i].FormatProperties
		if props.AspectMask&vk.ImageAspectFlags(vk.ImageAspectColorBit) == 0 {
			continue
		}
		props.ImageGranularity.Deref()
		img.granularity = props.ImageGranularity
		img.tailFirstLod = sparse[i].ImageMipTailFirstLod
		img.tailSize = uint64(sparse[i].ImageMipTailSize)
		img.tailOffset = uint64(sparse[i].ImageMipTailOffset)
		img.hasTail = img.tailFirstLod < levels && img.tailSize > 0
		found = true
		break
	}
	if !found {
		img.Destroy()
		return nil, errors.New("no sparse requirements for the color aspect")
	}

	vtex.Logger().Info("vtstream: sparse image created",
		"width", width, "height", height, "levels", levels,
		"granularity_w", img.granularity.Width, "granularity_h", img.granularity.Height,
		"mip_tail_first_lod", img.tailFirstLod, "mip_tail_size", img.tailSize)
	return img, nil
}

// Handle returns the vk.Image.
func (img *SparseImage) Handle() vk.Image { return img.handle }

// BytesPerTexel is the texel size of the image format.
func (img *SparseImage) BytesPerTexel() uint32 { return 4 }

// PagedLevels is the number of mip levels bound page by page. Levels from
// the mip tail on are bound as one opaque block.
func (img *SparseImage) PagedLevels() uint32 {
	if img.hasTail {
		return img.tailFirstLod
	}
	return img.levels
}

// Capabilities reports the page granularity and the device-local memory type
// pages are allocated from.
func (img *SparseImage) Capabilities() (vtex.Capabilities, error) {
	index, ok := FindRequiredMemoryType(img.device.MemoryProperties(), img.typeBits, vk.MemoryPropertyDeviceLocalBit)
	if !ok {
		return vtex.Capabilities{}, errors.Newf("no device local memory type in bits %#x", img.typeBits)
	}
	page := uint64(img.granularity.Width) * uint64(img.granularity.Height) * uint64(img.BytesPerTexel())
	if img.alignment == 0 || page%img.alignment != 0 {
		return vtex.Capabilities{}, errors.Newf("page of %d bytes is not a multiple of the sparse block alignment %d",
			page, img.alignment)
	}
	return vtex.Capabilities{
		BlockWidth:      img.granularity.Width,
		BlockHeight:     img.granularity.Height,
		MemoryTypeIndex: index,
	}, nil
}

// BindMipTail allocates and binds the mip tail. It is a no-op for images
// whose every level is paged.
func (img *SparseImage) BindMipTail(sd *SparseDevice) (vtex.Fence, error) {
	if !img.hasTail || img.tailMemory != vk.NullDeviceMemory {
		return nil, nil
	}
	caps, err := img.Capabilities()
	if err != nil {
		return nil, err
	}
	mem, err := sd.Allocate(img.tailSize, caps.MemoryTypeIndex)
	if err != nil {
		return nil, errors.Wrap(err, "allocating mip tail")
	}
	img.tailMemory = mem.(vk.DeviceMemory)
	fence, err := sd.BindOpaque(img.tailOffset, img.tailSize, img.tailMemory)
	if err != nil {
		sd.Free(img.tailMemory)
		img.tailMemory = vk.NullDeviceMemory
		return nil, errors.Wrap(err, "binding mip tail")
	}
	return fence, nil
}

// Destroy destroys the image and frees the mip tail. The caller must make
// sure no bind or draw still references it.
func (img *SparseImage) Destroy() {
	vk.DestroyImage(img.device.handle, img.handle, nil)
	if img.tailMemory != vk.NullDeviceMemory {
		vk.FreeMemory(img.device.handle, img.tailMemory, nil)
		img.tailMemory = vk.NullDeviceMemory
	}
}
