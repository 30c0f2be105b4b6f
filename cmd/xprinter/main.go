package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"xprinter/internal/bluez"
	"xprinter/internal/config"
	"xprinter/internal/imaging"
	"xprinter/internal/plugin"
	"xprinter/internal/printer"
	"xprinter/internal/tspl"
	"xprinter/internal/xprinter"
)

const (
	AppVersion = "1.0.0"
	AppName    = "XPrinter Labels"
)

type App struct {
	fyneApp fyne.App
	window  fyne.Window
	host    *plugin.Host
	log     *slog.Logger

	// what the Print button sends: a file from the image tab or rendered text
	imagePath  string
	sourceImg  image.Image
	textImg    image.Image
	textActive bool
	previewImg *canvas.Image

	// Settings
	labelSize tspl.LabelSize
	density   int
	copies    int

	// Widgets that need updating
	statusLabel    *widget.Label
	connectBtn     *widget.Button
	reconnectBtn   *widget.Button
	printBtn       *widget.Button
	btDeviceSelect *widget.Select
	refreshBTBtn   *widget.Button

	btDevices []bluez.Device

	// Text mode
	textEntry     *widget.Entry
	orientation   imaging.Orientation
	fontSize      float64
	textInvert    bool
	wordBreakOnly bool
}

// fyneUI shows what the host is missing for Bluetooth printing.
type fyneUI struct {
	window fyne.Window
}

func (u fyneUI) Prompt(missing []string) {
	dialog.ShowInformation("Bluetooth setup needed",
		"Printing needs the following on this computer:\n\n  "+strings.Join(missing, "\n  ")+
			"\n\nInstall or enable them, then refresh the device list.",
		u.window)
}

func main() {
	cfg, err := config.LoadOrDefault(os.Getenv("XPRINTER_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	a := app.New()
	w := a.NewWindow(fmt.Sprintf("%s v%s", AppName, AppVersion))
	w.Resize(fyne.NewSize(650, 550))

	x := &App{
		fyneApp:   a,
		window:    w,
		host:      plugin.NewHost(cfg, nil, logger),
		log:       logger,
		labelSize: labelFor(cfg.Printer),
		density:   cfg.Printer.Density,
		copies:    1,
		fontSize:  24,
	}
	x.host.Facade.AttachUI(fyneUI{window: w})
	x.host.Notifier.Observe(x.onStateChanged)
	if err := x.host.Manager.Initialize(); err != nil {
		logger.Warn("[gui] transport not ready", "error", err)
	}

	w.SetMainMenu(x.buildMenu())
	w.SetContent(x.buildUI())
	w.SetOnClosed(func() {
		x.host.Close()
	})
	w.ShowAndRun()
}

// labelFor picks the preset matching the configured paper, else the first.
func labelFor(p config.PrinterConfig) tspl.LabelSize {
	for _, s := range tspl.AllSizes {
		if s.Width == p.PaperWidth && s.Height == p.PaperHeight {
			return s
		}
	}
	return tspl.AllSizes[0]
}

func (a *App) buildMenu() *fyne.MainMenu {
	aboutItem := fyne.NewMenuItem("About", func() {
		a.showAboutDialog()
	})
	return fyne.NewMainMenu(fyne.NewMenu("Help", aboutItem))
}

func (a *App) showAboutDialog() {
	content := container.NewVBox(
		widget.NewLabelWithStyle(AppName, fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		widget.NewLabel(fmt.Sprintf("Version %s", AppVersion)),
		widget.NewSeparator(),
		widget.NewLabel("Prints labels on Bluetooth printers that speak TSPL."),
		widget.NewLabel("Built with Fyne and Go"),
	)
	dialog.ShowCustom("About", "Close", content, a.window)
}

func (a *App) buildUI() fyne.CanvasObject {
	a.statusLabel = widget.NewLabel(xprinter.Disconnected.String())

	// === BLUETOOTH CONNECTION SECTION ===
	a.btDeviceSelect = widget.NewSelect([]string{}, func(s string) {})
	a.refreshBTBtn = widget.NewButton("↻", func() {
		a.refreshBluetoothDevices()
	})
	a.connectBtn = widget.NewButton("Connect", func() {
		a.toggleConnection()
	})
	a.reconnectBtn = widget.NewButton("Reconnect last", func() {
		a.reconnect()
	})

	go a.refreshBluetoothDevices()

	btRow := container.NewBorder(
		nil, nil, nil,
		container.NewHBox(a.refreshBTBtn, a.connectBtn),
		a.btDeviceSelect,
	)

	// Print settings
	sizeOptions := make([]string, len(tspl.AllSizes))
	for i, s := range tspl.AllSizes {
		sizeOptions[i] = s.Name
	}
	sizeSelect := widget.NewSelect(sizeOptions, func(s string) {
		for _, size := range tspl.AllSizes {
			if size.Name == s {
				a.labelSize = size
				a.applySettings()
				a.updateTextPreview()
				a.updatePreview()
				break
			}
		}
	})
	sizeSelect.SetSelected(a.labelSize.Name)

	densitySlider := widget.NewSlider(0, 15)
	densitySlider.Value = float64(a.density)
	densitySlider.OnChanged = func(f float64) {
		if int(f) != a.density {
			a.density = int(f)
			a.applySettings()
		}
	}

	copiesEntry := widget.NewEntry()
	copiesEntry.SetText("1")
	copiesEntry.OnChanged = func(s string) {
		var n int
		fmt.Sscanf(s, "%d", &n)
		if n > 0 {
			a.copies = n
		}
	}

	a.printBtn = widget.NewButton("Print", func() {
		a.print()
	})
	a.printBtn.Importance = widget.HighImportance
	a.printBtn.Disable()

	// === IMAGE TAB ===
	imageTab := container.NewVBox(
		widget.NewButton("Load Image", func() {
			a.loadImage()
		}),
	)

	// === TEXT TAB ===
	a.textEntry = widget.NewMultiLineEntry()
	a.textEntry.SetPlaceHolder("Enter label text...")
	a.textEntry.SetMinRowsVisible(3)
	a.textEntry.OnChanged = func(s string) {
		a.updateTextPreview()
	}

	orientationSelect := widget.NewSelect([]string{"Horizontal", "Vertical"}, func(s string) {
		if s == "Vertical" {
			a.orientation = imaging.Vertical
		} else {
			a.orientation = imaging.Horizontal
		}
		a.updateTextPreview()
	})
	orientationSelect.SetSelected("Horizontal")

	fontSizeSlider := widget.NewSlider(4, 72)
	fontSizeSlider.Value = a.fontSize
	fontSizeSlider.OnChanged = func(f float64) {
		a.fontSize = f
		a.updateTextPreview()
	}

	textSettings := widget.NewForm(
		widget.NewFormItem("Orientation", orientationSelect),
		widget.NewFormItem("Font Size", fontSizeSlider),
		widget.NewFormItem("", widget.NewCheck("Invert", func(b bool) {
			a.textInvert = b
			a.updateTextPreview()
		})),
		widget.NewFormItem("", widget.NewCheck("Break on space only", func(b bool) {
			a.wordBreakOnly = b
			a.updateTextPreview()
		})),
	)

	textTab := container.NewVBox(a.textEntry, textSettings)

	tabs := container.NewAppTabs(
		container.NewTabItem("Image", imageTab),
		container.NewTabItem("Text", textTab),
	)
	tabs.OnSelected = func(t *container.TabItem) {
		a.textActive = t.Text == "Text"
		a.updatePreview()
	}

	a.previewImg = canvas.NewImageFromImage(nil)
	a.previewImg.SetMinSize(fyne.NewSize(200, 300))
	a.previewImg.FillMode = canvas.ImageFillContain

	leftPanel := container.NewVBox(
		widget.NewLabel("Bluetooth Printer:"),
		btRow,
		a.reconnectBtn,
		widget.NewSeparator(),
		widget.NewLabel("Label Size"),
		sizeSelect,
		widget.NewLabel("Density"),
		densitySlider,
		widget.NewLabel("Copies"),
		copiesEntry,
		widget.NewSeparator(),
		a.printBtn,
	)

	rightPanel := container.NewBorder(
		tabs,
		nil, nil, nil,
		container.NewCenter(a.previewImg),
	)

	content := container.NewHSplit(leftPanel, rightPanel)
	content.SetOffset(0.38)

	return container.NewBorder(
		nil,
		container.NewHBox(a.statusLabel),
		nil, nil,
		content,
	)
}

// onStateChanged runs on the notifier's dispatcher goroutine.
func (a *App) onStateChanged(ev xprinter.Event) {
	text := ev.State.String()
	if ev.Message != "" {
		text += ": " + ev.Message
	}
	a.statusLabel.SetText(text)

	switch ev.State {
	case xprinter.Connected:
		a.connectBtn.SetText("Disconnect")
		a.connectBtn.Enable()
		a.btDeviceSelect.Disable()
		a.refreshBTBtn.Disable()
	case xprinter.Connecting, xprinter.Printing:
		a.connectBtn.Disable()
	default:
		if !a.host.Manager.IsConnected() {
			a.connectBtn.SetText("Connect")
			a.btDeviceSelect.Enable()
			a.refreshBTBtn.Enable()
		}
		a.connectBtn.Enable()
	}
	a.updatePrintButton()
}

func (a *App) refreshBluetoothDevices() {
	devices := a.host.Directory.PairedDevices()
	if devices == nil {
		a.statusLabel.SetText("Bluetooth unavailable")
		if ok, err := a.host.Gate.Request(fyneUI{window: a.window}); !ok && err != nil {
			a.log.Warn("[gui] permission request failed", "error", err)
		}
		return
	}

	a.btDevices = devices
	options := make([]string, len(devices))
	for i, d := range devices {
		options[i] = fmt.Sprintf("%s (%s)", d.Name, d.Address)
	}
	a.btDeviceSelect.Options = options
	if len(options) > 0 {
		a.btDeviceSelect.SetSelected(options[0])
	}
	a.btDeviceSelect.Refresh()
	a.statusLabel.SetText(fmt.Sprintf("Found %d paired device(s)", len(devices)))
}

func (a *App) toggleConnection() {
	if a.host.Manager.IsConnected() {
		go a.host.Manager.Close()
		return
	}

	idx := a.btDeviceSelect.SelectedIndex()
	if idx < 0 || idx >= len(a.btDevices) {
		dialog.ShowError(errors.New("no Bluetooth device selected"), a.window)
		return
	}
	device := a.btDevices[idx]

	go func() {
		if err := a.host.Manager.Connect(context.Background(), device.Address); err != nil {
			if !errors.Is(err, xprinter.ErrSuperseded) {
				dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", device.Name, err), a.window)
			}
			return
		}
		a.applySettings()
	}()
}

func (a *App) reconnect() {
	go func() {
		ok, err := a.host.Manager.Reconnect(context.Background())
		switch {
		case !ok:
			dialog.ShowInformation("Reconnect", "No previous connection found", a.window)
		case err != nil && !errors.Is(err, xprinter.ErrSuperseded):
			dialog.ShowError(err, a.window)
		default:
			a.applySettings()
		}
	}()
}

// applySettings sends the selected label size and density to a connected
// printer. The manager keeps them for later connections.
func (a *App) applySettings() {
	if a.host == nil || !a.host.Manager.IsConnected() {
		return
	}
	cfg := printer.Config{
		Density:     a.density,
		Speed:       printer.DefaultConfig().Speed,
		PaperWidth:  a.labelSize.Width,
		PaperHeight: a.labelSize.Height,
	}
	go func() {
		if err := a.host.Manager.Configure(context.Background(), cfg); err != nil {
			a.log.Warn("[gui] configure failed", "error", err)
		}
	}()
}

func (a *App) loadImage() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, a.window)
			return
		}
		if reader == nil {
			return
		}
		defer reader.Close()

		data, err := io.ReadAll(reader)
		if err != nil {
			dialog.ShowError(err, a.window)
			return
		}
		img, err := imaging.Decode(data)
		if err != nil {
			dialog.ShowError(err, a.window)
			return
		}

		a.imagePath = reader.URI().Path()
		a.sourceImg = img
		a.updatePreview()
		a.updatePrintButton()
	}, a.window)

	fd.SetFilter(storage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}))
	fd.Show()
}

// current is the image the Print button would send.
func (a *App) current() image.Image {
	if a.textActive {
		return a.textImg
	}
	return a.sourceImg
}

func (a *App) updatePreview() {
	if a.previewImg == nil {
		return
	}
	img := a.current()
	if img == nil {
		a.previewImg.Image = nil
		a.previewImg.Refresh()
		return
	}

	w, _ := a.labelSize.Dots(imaging.PrinterDPI)
	r, err := imaging.Pack(img, w, imaging.DefaultThreshold, false)
	if err != nil {
		return
	}
	a.previewImg.Image = imaging.PreviewMonochrome(r)
	a.previewImg.Refresh()
}

func (a *App) updateTextPreview() {
	if a.textEntry == nil {
		return
	}
	w, h := a.labelSize.Dots(imaging.PrinterDPI)
	img, err := imaging.RenderText(a.textEntry.Text, w, h, imaging.TextOptions{
		FontSize:      a.fontSize,
		Orientation:   a.orientation,
		Invert:        a.textInvert,
		WordBreakOnly: a.wordBreakOnly,
	})
	if err != nil {
		a.textImg = nil
	} else {
		a.textImg = img
	}
	a.updatePreview()
	a.updatePrintButton()
}

func (a *App) updatePrintButton() {
	if a.printBtn == nil {
		return
	}
	// the job runner reconnects on its own when a previous printer is known
	reachable := a.host.Manager.IsConnected() || a.host.Manager.LastTarget() != ""
	if reachable && a.current() != nil && a.host.Manager.State() != xprinter.Printing {
		a.printBtn.Enable()
	} else {
		a.printBtn.Disable()
	}
}

func (a *App) job() (xprinter.Job, error) {
	w, _ := a.labelSize.Dots(imaging.PrinterDPI)
	if !a.textActive {
		if a.imagePath == "" {
			return xprinter.Job{}, errors.New("no image loaded")
		}
		return xprinter.Job{Path: a.imagePath, Width: w}, nil
	}
	if a.textImg == nil {
		return xprinter.Job{}, imaging.ErrNoText
	}
	data, err := imaging.EncodePNG(a.textImg)
	if err != nil {
		return xprinter.Job{}, err
	}
	return xprinter.Job{Data: data, Width: w}, nil
}

func (a *App) print() {
	job, err := a.job()
	if err != nil {
		dialog.ShowError(err, a.window)
		return
	}

	a.printBtn.Disable()
	copies := a.copies
	go func() {
		for i := 0; i < copies; i++ {
			if err := <-a.host.Manager.Submit(context.Background(), job); err != nil {
				dialog.ShowError(err, a.window)
				break
			}
		}
		a.updatePrintButton()
	}()
}
