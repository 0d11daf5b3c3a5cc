package cups

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiosklock/kiosklock/internal/kiosk"
)

func TestListPrinters(t *testing.T) {
	p := New(nil)
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "lpstat", name)
		assert.Equal(t, []string{"-e"}, args)
		return []byte("Office_Laser\n\nPDF\n"), nil
	}

	printers, err := p.ListPrinters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Office_Laser", "PDF"}, printers)
}

func TestListPrintersError(t *testing.T) {
	p := New(nil)
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("lpstat: No destinations added.")
	}

	_, err := p.ListPrinters(context.Background())
	assert.Error(t, err)
}

func TestPrint(t *testing.T) {
	p := New(nil)
	p.TempDir = t.TempDir()

	var gotArgs []string
	var decoded image.Image
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "lp", name)
		gotArgs = args
		f, err := os.Open(args[len(args)-1])
		require.NoError(t, err)
		defer f.Close()
		decoded, err = png.Decode(f)
		require.NoError(t, err)
		return []byte("request id is Office_Laser-7 (1 file(s))\n"), nil
	}

	job := kiosk.Job{Printer: "Office_Laser", Title: "QPD", Image: image.NewRGBA(image.Rect(0, 0, 4, 3)), Copies: 2}
	require.NoError(t, p.Print(context.Background(), job))

	require.Len(t, gotArgs, 7)
	assert.Equal(t, []string{"-d", "Office_Laser", "-n", "2", "-t", "QPD"}, gotArgs[:6])
	assert.Equal(t, image.Rect(0, 0, 4, 3), decoded.Bounds())

	_, err := os.Stat(gotArgs[6])
	assert.True(t, os.IsNotExist(err), "print file must be removed")
}

func TestLPArgsDefaults(t *testing.T) {
	args := lpArgs(kiosk.Job{}, "/tmp/x.png")

	assert.Equal(t, []string{"-n", "1", "/tmp/x.png"}, args)
}

func TestPrintWithoutImage(t *testing.T) {
	p := New(nil)

	assert.Error(t, p.Print(context.Background(), kiosk.Job{}))
}
