package vtstream

import (
	"log"
	"os"
	"runtime"

	"github.com/andewx/vtstream/vtex"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// NewError converts a failed Vulkan result into an error naming the caller.
// Out of memory results are marked as [vtex.ErrAllocationFailure].
func NewError(ret vk.Result) error {
	if !isError(ret) {
		return nil
	}
	var err error
	if pc, _, line, ok := runtime.Caller(1); ok {
		err = errors.Newf("vulkan error: %s (%d) on %s:%d",
			vk.Error(ret).Error(), ret, runtime.FuncForPC(pc).Name(), line)
	} else {
		err = errors.Newf("vulkan error: %s (%d)", vk.Error(ret).Error(), ret)
	}
	if ret == vk.ErrorOutOfDeviceMemory || ret == vk.ErrorOutOfHostMemory {
		err = errors.Mark(err, vtex.ErrAllocationFailure)
	}
	return err
}

// Fatal runs the finalizers and exits after appending err to fatal_log.txt.
func Fatal(err error, finalizers ...func()) {
	if err != nil {
		for _, fn := range finalizers {
			fn()
		}

		file, ferr := os.OpenFile("fatal_log.txt", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if ferr != nil {
			log.Fatal(err)
		}
		fatal_log := log.New(file, "FATAL: ", log.Ldate|log.Ltime|log.Lshortfile)
		fatal_log.Fatalf("%+v", err)
	}
}

// checkErr turns a panic inside vulkan-go enumeration helpers into err.
func checkErr(err *error) {
	if v := recover(); v != nil {
		*err = errors.Newf("%+v", v)
	}
}

func orPanic(err error) {
	if err != nil {
		panic(err)
	}
}
